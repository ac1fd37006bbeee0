package domain

import "time"

// AudioPage is one shareable card reachable by its short code.
type AudioPage struct {
	ID                  string     `json:"id"`
	Code                string     `json:"code"`
	AudioURL            string     `json:"audioUrl"`
	AudioFilename       string     `json:"audioFilename"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	CreatedAt           time.Time  `json:"createdAt"`
	PageURL             string     `json:"pageUrl"`
	IsPersonalized      bool       `json:"isPersonalized"`
	PersonalizedAt      *time.Time `json:"personalizedAt,omitempty"`
	PlayCount           int        `json:"playCount"`
	MaxPlays            int        `json:"maxPlays"`
	ExpirationDate      time.Time  `json:"expirationDate"`
	SenderName          string     `json:"senderName,omitempty"`
	RecipientName       string     `json:"recipientName,omitempty"`
	WrittenMessage      string     `json:"writtenMessage,omitempty"`
	ImageURL            string     `json:"imageUrl,omitempty"`
	ImageFilename       string     `json:"imageFilename,omitempty"`
	UseImageAsWallpaper bool       `json:"useImageAsWallpaper,omitempty"`
	PinHash             string     `json:"pinHash,omitempty"`
	HasPin              bool       `json:"hasPin"`
	IsTest              bool       `json:"isTest,omitempty"`
	IsDemo              bool       `json:"isDemo,omitempty"`
	Source              string     `json:"source,omitempty"`
}

const (
	SourceUpload  = "upload"
	SourceSibling = "sibling"
	SourceBulk    = "bulk"
	SourceDemo    = "demo"
)

// Expired reports whether the absolute deadline has passed.
func (p AudioPage) Expired(now time.Time) bool {
	return now.After(p.ExpirationDate)
}

// PlaysExhausted reports whether the play budget is used up.
func (p AudioPage) PlaysExhausted() bool {
	return p.PlayCount >= p.MaxPlays
}

// Destroyed reports whether the page is no longer viewable as live content.
func (p AudioPage) Destroyed(now time.Time) bool {
	return p.Expired(now) || p.PlaysExhausted()
}

// Public returns a copy safe to hand to API clients.
func (p AudioPage) Public() AudioPage {
	p.PinHash = ""
	return p
}

// Asset points to a stored file and the URL it is served from.
type Asset struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// AudioAsset is a processed audio file together with its probed duration.
type AudioAsset struct {
	Asset
	DurationSeconds float64 `json:"durationSeconds"`
}

// PlayResult is returned after a play has been recorded.
type PlayResult struct {
	PlayCount int  `json:"playCount"`
	MaxPlays  int  `json:"maxPlays"`
	CanPlay   bool `json:"canPlay"`
	Destroyed bool `json:"destroyed"`
}
