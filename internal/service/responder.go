package service

import (
	"hash/fnv"

	"github.com/agriclip/chat-service/internal/models"
)

// Responder produces the assistant's free-text reply to a user message
// that carried no attachment. The templated implementation below stands
// in for a real language-model call, which would slot in behind this
// interface unchanged.
type Responder interface {
	Reply(topic models.ConversationTopic, userText string) (string, *models.AIResponse)
}

var adviceReplies = []string{
	"That's a great question about crop management! Based on current agricultural best practices, I recommend regular field scouting and balanced fertilization.",
	"For optimal plant health, consider these factors: soil pH, moisture levels, and nutrient balance. Would you like me to elaborate on any of these?",
	"Disease prevention is crucial in agriculture. Regular monitoring and early intervention can save entire crops. What specific concerns do you have?",
	"Weather conditions play a vital role in crop health. Have you noticed any recent changes in your local climate patterns?",
}

var troubleshootingReplies = []string{
	"Let's narrow this down. When did you first notice the issue, and is it spreading between plants?",
	"Check the undersides of the leaves and the soil moisture first; both are common culprits. Can you describe what you see?",
}

// TemplatedResponder picks a canned reply deterministically from the
// user's text, so repeated identical inputs produce identical replies.
type TemplatedResponder struct {
	Model string
}

func NewTemplatedResponder() *TemplatedResponder {
	return &TemplatedResponder{Model: "agriclip-v1"}
}

func (r *TemplatedResponder) Reply(topic models.ConversationTopic, userText string) (string, *models.AIResponse) {
	h := fnv.New32a()
	h.Write([]byte(userText))
	sum := int(h.Sum32())

	pool := adviceReplies
	if topic == models.TopicTroubleshooting {
		pool = troubleshootingReplies
	}
	text := pool[sum%len(pool)]

	return text, &models.AIResponse{
		Model:          r.Model,
		Confidence:     70 + sum%31,
		ProcessingTime: 500 + sum%2000,
		Tokens: models.TokenUsage{
			Input:  len(userText)/4 + 50,
			Output: len(text) / 4,
		},
	}
}
