package backend

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ChatType is the provider category of a chat.
type ChatType string

const (
	ChatUser       ChatType = "user"
	ChatGroup      ChatType = "group"
	ChatSupergroup ChatType = "supergroup"
	ChatChannel    ChatType = "channel"
	ChatForum      ChatType = "forum"
)

// Chat is a top-level conversational container. IDs may be negative.
type Chat struct {
	ID           int64    `json:"id"`
	Title        string   `json:"title"`
	Type         ChatType `json:"type"`
	Username     string   `json:"username,omitempty"`
	MembersCount *int     `json:"members_count,omitempty"`
	IsForum      bool     `json:"is_forum"`
	UnreadCount  int      `json:"unread_count,omitempty"`
}

// Topic is a forum subdivision of a chat.
type Topic struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	MessagesCount *int   `json:"messages_count,omitempty"`
}

// Author identifies who wrote a message.
type Author struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// DisplayName returns "First Last", @username, or a numeric fallback.
func (a Author) DisplayName() string {
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	if name != "" {
		return name
	}
	if a.Username != "" {
		return "@" + a.Username
	}
	return fmt.Sprintf("User %d", a.ID)
}

// Message is an indexed Telegram message as returned in search hits.
type Message struct {
	ID           int64  `json:"id"`
	ChatID       int64  `json:"chat_id"`
	ChatTitle    string `json:"chat_title"`
	ChatUsername string `json:"chat_username,omitempty"`
	TopicID      *int64 `json:"topic_id,omitempty"`
	TopicTitle   string `json:"topic_title,omitempty"`
	Author       Author `json:"author"`
	Text         string `json:"text"`
	Date         string `json:"date"`
	ReplyTo      *int64 `json:"reply_to_msg_id,omitempty"`
	Views        *int   `json:"views,omitempty"`
	Forwards     *int   `json:"forwards,omitempty"`
}

// Link builds the public t.me URL of the message. Private supergroups drop
// the -100 prefix and use the /c/ form.
func (m Message) Link() string {
	if m.ChatUsername != "" {
		return fmt.Sprintf("https://t.me/%s/%d", m.ChatUsername, m.ID)
	}
	id := strconv.FormatInt(m.ChatID, 10)
	id = strings.TrimPrefix(id, "-100")
	return fmt.Sprintf("https://t.me/c/%s/%d", id, m.ID)
}

// Hit is one ranked search result.
type Hit struct {
	Message   Message `json:"message"`
	Score     float64 `json:"score"`
	Highlight string  `json:"highlight,omitempty"`
}

// SearchRequest is the body of POST /api/rag/search.
type SearchRequest struct {
	Query   string  `json:"query"`
	Sources []int64 `json:"sources"`
	TopK    int     `json:"top_k"`
}

// SearchResponse is the result of a search.
type SearchResponse struct {
	Query      string `json:"query"`
	Results    []Hit  `json:"results"`
	TotalFound int    `json:"total_found"`
}

// AnswerFilters narrows the retrieval set for answer generation.
type AnswerFilters struct {
	ChatIDs []int64 `json:"chat_ids"`
}

// AnswerRequest is the body of POST /api/rag/answer.
type AnswerRequest struct {
	Query   string        `json:"query"`
	Filters AnswerFilters `json:"filters"`
	TopK    int           `json:"top_k"`
	Style   string        `json:"style,omitempty"`
}

// Section is one titled block of a generated answer.
type Section struct {
	Title string   `json:"title"`
	Text  string   `json:"text"`
	CIDs  []string `json:"cids,omitempty"`
}

// RejectedClaim is a claim the generator dropped for lack of support.
type RejectedClaim struct {
	Claim  string `json:"claim"`
	Reason string `json:"reason"`
}

// Answer is a generated narrative over retrieved messages.
type Answer struct {
	Summary  string          `json:"summary"`
	Sections []Section       `json:"sections"`
	Rejected []RejectedClaim `json:"rejected"`
	Markdown string          `json:"markdown"`
}

// Citation links an answer segment back to a source message.
type Citation struct {
	CID       string `json:"cid"`
	MessageID int64  `json:"message_id"`
	ChatID    int64  `json:"chat_id"`
	TgLink    string `json:"tg_link,omitempty"`
}

// Retrieval describes how many messages fed the generator.
type Retrieval struct {
	Used      int   `json:"used"`
	TopK      int   `json:"top_k"`
	LatencyMS int64 `json:"latency_ms"`
}

// AnswerResponse is the result of answer generation. Error is set instead of
// Answer when generation failed server-side.
type AnswerResponse struct {
	Answer    *Answer    `json:"answer,omitempty"`
	Citations []Citation `json:"citations"`
	Retrieval Retrieval  `json:"retrieval"`
	Error     string     `json:"error,omitempty"`
}

// DownloadRequest starts a download-and-index job.
type DownloadRequest struct {
	ChatID   int64  `json:"chat_id"`
	TopicID  *int64 `json:"topic_id,omitempty"`
	Limit    int    `json:"limit"`
	OffsetID int64  `json:"offset_id"`
	MinID    int64  `json:"min_id"`
	MaxID    int64  `json:"max_id"`
}

// Validate checks the request bounds: a positive limit, non-negative ids,
// and min below max when both are set.
func (r DownloadRequest) Validate() error {
	if r.Limit < 1 {
		return fmt.Errorf("limit must be positive, got %d", r.Limit)
	}
	if r.OffsetID < 0 || r.MinID < 0 || r.MaxID < 0 {
		return errors.New("message ids must be non-negative")
	}
	if r.MinID > 0 && r.MaxID > 0 && r.MinID >= r.MaxID {
		return errors.New("min id must be below max id")
	}
	return nil
}

// Source is a chat (or topic) already indexed by the backend.
type Source struct {
	ChatID        int64  `json:"chat_id"`
	ChatTitle     string `json:"chat_title"`
	TopicID       *int64 `json:"topic_id,omitempty"`
	TopicTitle    string `json:"topic_title,omitempty"`
	MessagesCount int    `json:"messages_count"`
}

// Label is a human-readable name for the source.
func (s Source) Label() string {
	if s.TopicTitle != "" {
		return s.ChatTitle + " / " + s.TopicTitle
	}
	return s.ChatTitle
}

// Stats are the backend's aggregate index counters.
type Stats struct {
	EmbeddingsCount int    `json:"embeddings_count"`
	MessagesCount   int    `json:"messages_count"`
	Sources         int    `json:"sources"`
	ContactsCount   int    `json:"contacts_count"`
	Error           string `json:"error,omitempty"`
}

// AuthStatus reports the upstream Telegram session.
type AuthStatus struct {
	IsAuthorized bool   `json:"is_authorized"`
	Phone        string `json:"phone,omitempty"`
	UserID       int64  `json:"user_id,omitempty"`
	Username     string `json:"username,omitempty"`
}

// Auth step outcomes.
const (
	AuthCodeSent    = "code_sent"
	AuthAuthorized  = "authorized"
	Auth2FARequired = "2fa_required"
	AuthError       = "error"
)

// AuthResult is returned by each auth step.
type AuthResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Contact is a harvested user profile.
type Contact struct {
	ID                   int64  `json:"id"`
	Username             string `json:"username,omitempty"`
	FirstName            string `json:"first_name,omitempty"`
	LastName             string `json:"last_name,omitempty"`
	FullName             string `json:"full_name,omitempty"`
	Phone                string `json:"phone,omitempty"`
	Bio                  string `json:"bio,omitempty"`
	Birthday             string `json:"birthday,omitempty"`
	CommonChatsCount     *int   `json:"common_chats_count,omitempty"`
	PersonalChannelTitle string `json:"personal_channel_title,omitempty"`
	MessagesCount        int    `json:"messages_count"`
}

// Name returns the best available display name.
func (c Contact) Name() string {
	if c.FullName != "" {
		return c.FullName
	}
	a := Author{ID: c.ID, Username: c.Username, FirstName: c.FirstName, LastName: c.LastName}
	return a.DisplayName()
}

// Link is the t.me profile URL, or a tg:// deep link when there is no username.
func (c Contact) Link() string {
	if c.Username != "" {
		return "https://t.me/" + c.Username
	}
	return fmt.Sprintf("tg://user?id=%d", c.ID)
}

// ContactHit is one contact search result.
type ContactHit struct {
	Contact Contact `json:"contact"`
	Score   float64 `json:"score"`
}

// ContactDetail is the response of GET /api/rag/contacts/{id}.
type ContactDetail struct {
	Contact       *Contact `json:"contact,omitempty"`
	MessagesCount int      `json:"messages_count"`
	Error         string   `json:"error,omitempty"`
}
