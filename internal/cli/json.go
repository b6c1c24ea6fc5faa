package cli

import (
	"time"

	"github.com/ternmail/tern/internal/domain"
)

type jsonAccount struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

func toJSONAccounts(accounts []domain.Account) []jsonAccount {
	out := make([]jsonAccount, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, jsonAccount{ID: a.ID, Name: a.Name, Address: a.Address})
	}
	return out
}

type jsonFolder struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Unread int    `json:"unread"`
}

func toJSONFolders(folders []domain.Folder) []jsonFolder {
	out := make([]jsonFolder, 0, len(folders))
	for _, f := range folders {
		out = append(out, jsonFolder{ID: f.ID, Name: f.Name, Unread: f.Unread})
	}
	return out
}

type jsonMessage struct {
	ID      int64  `json:"id"`
	UID     uint32 `json:"uid"`
	Date    string `json:"date"`
	From    string `json:"from"`
	To      string `json:"to,omitempty"`
	CC      string `json:"cc,omitempty"`
	Subject string `json:"subject"`
	Unread  bool   `json:"unread"`
	Preview string `json:"preview,omitempty"`
}

func toJSONMessage(m *domain.Message) jsonMessage {
	return jsonMessage{
		ID:      m.ID,
		UID:     m.UID,
		Date:    m.Date.Format(time.RFC3339),
		From:    m.From,
		To:      m.To,
		CC:      m.CC,
		Subject: m.Subject,
		Unread:  m.Unread,
		Preview: m.Preview,
	}
}

func toJSONMessages(msgs []domain.Message) []jsonMessage {
	out := make([]jsonMessage, 0, len(msgs))
	for i := range msgs {
		out = append(out, toJSONMessage(&msgs[i]))
	}
	return out
}

type jsonAttachment struct {
	Index    int    `json:"index"`
	Filename string `json:"filename"`
	MIME     string `json:"mime"`
	Size     int64  `json:"size"`
}

func toJSONAttachments(atts []domain.Attachment) []jsonAttachment {
	out := make([]jsonAttachment, 0, len(atts))
	for _, a := range atts {
		out = append(out, jsonAttachment{Index: a.Index, Filename: a.Filename, MIME: a.MIME, Size: a.Size})
	}
	return out
}
