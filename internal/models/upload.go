package models

import (
	"strings"
	"time"
)

// Upload is owned by the upload pipeline; this service only resolves it
// to denormalize attachment metadata and never mutates it.
type Upload struct {
	ID           string    `bson:"_id" json:"id"`
	UserID       string    `bson:"userId" json:"userId"`
	Filename     string    `bson:"filename" json:"filename"`
	OriginalName string    `bson:"originalName" json:"originalName"`
	MimeType     string    `bson:"mimeType" json:"mimeType"`
	FileSize     int64     `bson:"fileSize" json:"fileSize"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}

func (u *Upload) FileURL() string {
	return "/uploads/" + u.Filename
}

func (u *Upload) IsImage() bool {
	return strings.HasPrefix(u.MimeType, "image/")
}

func (u *Upload) Attachment() Attachment {
	return Attachment{
		UploadID:     u.ID,
		Filename:     u.Filename,
		OriginalName: u.OriginalName,
		MimeType:     u.MimeType,
		FileSize:     u.FileSize,
		FileURL:      u.FileURL(),
	}
}
