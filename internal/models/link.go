package models

import (
	"time"
)

// Link запись короткой ссылки
type Link struct {
	ID          int64      `json:"-"` // порядковый номер вставки
	Code        string     `json:"code"`
	Target      string     `json:"target"`
	Clicks      int64      `json:"clicks"`
	LastClicked *time.Time `json:"lastClicked"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Clone возвращает независимую копию ссылки
func (l *Link) Clone() *Link {
	c := *l
	if l.LastClicked != nil {
		t := *l.LastClicked
		c.LastClicked = &t
	}
	return &c
}

type CreateLinkInput struct {
	Target string
	Code   *string // nil или пустая строка - код генерируется сервером
}

// ClickEvent событие перехода по короткой ссылке
type ClickEvent struct {
	Code      string
	IPAddress string
	UserAgent string
	ClickedAt time.Time
}
