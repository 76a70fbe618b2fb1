package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// ListChats fetches all dialogs. refresh asks the backend to bypass its own
// dialog cache as well.
func (c *Client) ListChats(ctx context.Context, refresh bool) ([]Chat, error) {
	path := "/api/chats/"
	if refresh {
		path += "?refresh=true"
	}
	var chats []Chat
	if err := c.get(ctx, path, &chats); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

// ListTopics fetches forum topics of a chat.
func (c *Client) ListTopics(ctx context.Context, chatID int64) ([]Topic, error) {
	var topics []Topic
	if err := c.get(ctx, fmt.Sprintf("/api/chats/%d/topics", chatID), &topics); err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	return topics, nil
}

// StartDownload opens a download-and-index job and returns the live NDJSON
// body. The caller owns the body and must close it; cancelling ctx aborts
// the read.
func (c *Client) StartDownload(ctx context.Context, req DownloadRequest) (io.ReadCloser, error) {
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/messages/download", req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("backend not reachable at %s (%w)", c.baseURL, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}
	return resp.Body, nil
}

// Search runs semantic search over the given sources.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	var out SearchResponse
	if err := c.post(ctx, "/api/rag/search", req, &out); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return &out, nil
}

// Answer requests a cited answer. An error marker in the body is returned as
// ErrAnswerFailed; the decoded response is still returned alongside it.
func (c *Client) Answer(ctx context.Context, req AnswerRequest) (*AnswerResponse, error) {
	var out AnswerResponse
	if err := c.post(ctx, "/api/rag/answer", req, &out); err != nil {
		return nil, fmt.Errorf("answer: %w", err)
	}
	if out.Error != "" {
		return &out, fmt.Errorf("%w: %s", ErrAnswerFailed, out.Error)
	}
	if out.Answer == nil {
		return &out, fmt.Errorf("%w: empty answer", ErrAnswerFailed)
	}
	return &out, nil
}

// Sources lists indexed chats and topics.
func (c *Client) Sources(ctx context.Context) ([]Source, error) {
	var out []Source
	if err := c.get(ctx, "/api/rag/sources", &out); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return out, nil
}

// Stats fetches index counters.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var out Stats
	if err := c.get(ctx, "/api/rag/stats", &out); err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	if out.Error != "" {
		return &out, fmt.Errorf("stats: %s", out.Error)
	}
	return &out, nil
}

// DeleteSource removes an indexed chat, or a single topic when topicID is set.
func (c *Client) DeleteSource(ctx context.Context, chatID int64, topicID *int64) error {
	path := fmt.Sprintf("/api/rag/sources/%d", chatID)
	if topicID != nil {
		path += "?topic_id=" + strconv.FormatInt(*topicID, 10)
	}
	if err := c.delete(ctx, path, nil); err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	return nil
}

// AuthStatus reports whether the backend holds an authorized session.
func (c *Client) AuthStatus(ctx context.Context) (*AuthStatus, error) {
	var out AuthStatus
	if err := c.get(ctx, "/api/chats/auth/status", &out); err != nil {
		return nil, fmt.Errorf("auth status: %w", err)
	}
	return &out, nil
}

// SendCode asks the backend to send a login code to the configured phone.
func (c *Client) SendCode(ctx context.Context) (*AuthResult, error) {
	return c.authStep(ctx, "/api/chats/auth/send-code", struct{}{})
}

// VerifyCode submits the login code.
func (c *Client) VerifyCode(ctx context.Context, code string) (*AuthResult, error) {
	return c.authStep(ctx, "/api/chats/auth/verify-code", map[string]string{"code": code})
}

// Verify2FA submits the cloud password.
func (c *Client) Verify2FA(ctx context.Context, password string) (*AuthResult, error) {
	return c.authStep(ctx, "/api/chats/auth/verify-2fa", map[string]string{"password": password})
}

func (c *Client) authStep(ctx context.Context, path string, body any) (*AuthResult, error) {
	var out AuthResult
	if err := c.post(ctx, path, body, &out); err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	return &out, nil
}

// SearchContacts runs semantic search over harvested contacts.
func (c *Client) SearchContacts(ctx context.Context, query string, topK int) ([]ContactHit, error) {
	var out struct {
		Results []ContactHit `json:"results"`
	}
	body := map[string]any{"query": query, "top_k": topK}
	if err := c.post(ctx, "/api/rag/contacts/search?expand_query=true", body, &out); err != nil {
		return nil, fmt.Errorf("search contacts: %w", err)
	}
	return out.Results, nil
}

// GetContact fetches one contact profile.
func (c *Client) GetContact(ctx context.Context, userID int64) (*ContactDetail, error) {
	var out ContactDetail
	if err := c.get(ctx, "/api/rag/contacts/"+url.PathEscape(strconv.FormatInt(userID, 10)), &out); err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	if out.Error != "" {
		return &out, fmt.Errorf("get contact: %s", out.Error)
	}
	return &out, nil
}
