package models

// SummaryType is the kind of document a summary was produced from.
type SummaryType string

// Summary types.
const (
	SummaryMeeting  SummaryType = "meeting"
	SummaryDocument SummaryType = "document"
)

// Summary is an immutable digest of a meeting or document.
// ActionItems holds task titles only; they are not linked to Task records.
type Summary struct {
	ID           string      `json:"id"`
	UserID       string      `json:"userId"`
	Type         SummaryType `json:"type"`
	Title        string      `json:"title"`
	Content      string      `json:"content"`
	ActionItems  []string    `json:"actionItems"`
	SourceOrigin string      `json:"sourceOrigin"`
	CreatedAt    string      `json:"createdAt"`
}

// Integration is a connected third-party application toggle.
// Provider is the stable key ("gmail", "slack", ...); ID is the record id.
type Integration struct {
	ID       string `json:"id"`
	UserID   string `json:"userId"`
	Provider string `json:"provider"`
	Name     string `json:"name"`
	Enabled  bool   `json:"enabled"`
}

// DefaultIntegrations are seeded for a fresh owner.
var DefaultIntegrations = []Integration{
	{Provider: "gmail", Name: "Gmail", Enabled: true},
	{Provider: "slack", Name: "Slack", Enabled: true},
	{Provider: "notion", Name: "Notion", Enabled: true},
	{Provider: "trello", Name: "Trello", Enabled: false},
	{Provider: "jira", Name: "Jira", Enabled: true},
}
