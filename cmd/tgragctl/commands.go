package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matheus3301/tgrag/internal/backend"
	"github.com/matheus3301/tgrag/internal/config"
	"github.com/matheus3301/tgrag/internal/job"
	"github.com/matheus3301/tgrag/internal/profile"
	"github.com/matheus3301/tgrag/internal/search"
	"github.com/matheus3301/tgrag/internal/store"
	"github.com/matheus3301/tgrag/internal/view"
)

func parseID(s, what string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", what, s)
	}
	return v, nil
}

// topicFlag returns the --topic value, or nil when it was not given.
func topicFlag(cmd *cobra.Command) (*int64, error) {
	if !cmd.Flags().Changed("topic") {
		return nil, nil
	}
	v, err := cmd.Flags().GetInt64("topic")
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// --- status ---

type statusJSON struct {
	Profile    string              `json:"profile"`
	BackendURL string              `json:"backend_url"`
	Auth       *backend.AuthStatus `json:"auth,omitempty"`
	Stats      *backend.Stats      `json:"stats,omitempty"`
	Errors     []string            `json:"errors,omitempty"`
}

func statusCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backend, account, and index status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := statusJSON{Profile: e.profile, BackendURL: e.client.BaseURL()}
			auth, authErr := e.client.AuthStatus(ctx)
			stats, statsErr := e.client.Stats(ctx)
			if authErr != nil && statsErr != nil {
				return fmt.Errorf("backend %s unreachable: %w", out.BackendURL, authErr)
			}
			out.Auth, out.Stats = auth, stats
			for _, err := range []error{authErr, statsErr} {
				if err != nil {
					out.Errors = append(out.Errors, err.Error())
				}
			}
			if e.jsonOut {
				return e.writeJSON(out)
			}

			e.printField("Profile", "%s", e.profile)
			e.printField("Backend", "%s", out.BackendURL)
			switch {
			case authErr != nil:
				e.printField("Account", "error: %v", authErr)
			case !auth.IsAuthorized:
				e.printField("Account", "%s", e.colorize(colorYellow, "not authorized (run tgragctl auth send)"))
			case auth.Username != "":
				e.printField("Account", "@%s", auth.Username)
			default:
				e.printField("Account", "%s", auth.Phone)
			}
			if statsErr != nil {
				e.printField("Index", "error: %v", statsErr)
				return nil
			}
			printStats(e, stats)
			return nil
		},
	}
}

func printStats(e *env, s *backend.Stats) {
	e.printField("Messages", "%d", s.MessagesCount)
	e.printField("Vectors", "%d", s.EmbeddingsCount)
	e.printField("Sources", "%d", s.Sources)
	e.printField("Contacts", "%d", s.ContactsCount)
	if s.Error != "" {
		e.printWarning("index reported: %s", s.Error)
	}
}

func statsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := e.client.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if e.jsonOut {
				return e.writeJSON(stats)
			}
			printStats(e, stats)
			return nil
		},
	}
}

// --- chats ---

func chatsCmd(e *env) *cobra.Command {
	var (
		refresh bool
		filter  string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List chats visible to the Telegram account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			chats, err := e.chats.Get(cmd.Context(), refresh)
			if err != nil {
				if len(chats) == 0 {
					return err
				}
				e.printWarning("refresh failed, showing cached chats: %v", err)
			}

			floor := limit
			if floor <= 0 {
				floor = len(chats)
			}
			p := view.NewProjector(floor, view.DefaultStep)
			p.SetChats(chats)
			p.SetFilter(filter)
			visible := p.Visible()

			if e.jsonOut {
				return e.writeJSON(visible)
			}
			rows := make([][]string, 0, len(visible))
			for _, c := range visible {
				members := "-"
				if c.MembersCount != nil {
					members = strconv.Itoa(*c.MembersCount)
				}
				title := c.Title
				if c.IsForum {
					title += " #"
				}
				rows = append(rows, []string{strconv.FormatInt(c.ID, 10), string(c.Type), members, oneLine(title, 60)})
			}
			if err := e.table([]string{"ID", "TYPE", "MEMBERS", "TITLE"}, rows); err != nil {
				return err
			}
			if p.HasMore() {
				e.printStep("%d of %d chats shown; raise --limit for more", p.VisibleCount(), p.FilteredLen())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the chat cache")
	cmd.Flags().StringVar(&filter, "filter", "", "case-insensitive title filter")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum chats to show (0 = all)")
	return cmd
}

func topicsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "topics <chat_id>",
		Short: "List the topics of a forum chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseID(args[0], "chat id")
			if err != nil {
				return err
			}
			topics, err := e.client.ListTopics(cmd.Context(), chatID)
			if err != nil {
				return err
			}
			if e.jsonOut {
				return e.writeJSON(topics)
			}
			rows := make([][]string, 0, len(topics))
			for _, t := range topics {
				count := "-"
				if t.MessagesCount != nil {
					count = strconv.Itoa(*t.MessagesCount)
				}
				rows = append(rows, []string{strconv.FormatInt(t.ID, 10), count, oneLine(t.Title, 60)})
			}
			return e.table([]string{"ID", "MESSAGES", "TITLE"}, rows)
		},
	}
}

// --- download and job history ---

type entryJSON struct {
	Kind string    `json:"kind"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

type jobJSON struct {
	ID          string      `json:"id"`
	ChatID      int64       `json:"chat_id"`
	ChatTitle   string      `json:"chat_title,omitempty"`
	TopicID     *int64      `json:"topic_id,omitempty"`
	Limit       int         `json:"limit"`
	State       string      `json:"state"`
	Downloaded  int         `json:"downloaded"`
	Indexed     int         `json:"indexed"`
	Total       int         `json:"total"`
	ParseErrors int         `json:"parse_errors"`
	Error       string      `json:"error,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
	Log         []entryJSON `json:"log,omitempty"`
}

func snapshotJSON(s job.Snapshot) jobJSON {
	out := jobJSON{
		ID:          s.ID,
		ChatID:      s.Request.ChatID,
		TopicID:     s.Request.TopicID,
		Limit:       s.Request.Limit,
		State:       string(s.State),
		Downloaded:  s.Stats.Downloaded,
		Indexed:     s.Stats.Indexed,
		Total:       s.Stats.Total,
		ParseErrors: s.Stats.ParseErrors,
		Error:       s.Err,
		StartedAt:   s.StartedAt,
	}
	if !s.FinishedAt.IsZero() {
		f := s.FinishedAt
		out.FinishedAt = &f
	}
	for _, en := range s.Log {
		out.Log = append(out.Log, entryJSON{Kind: string(en.Kind), Text: en.Text, At: en.At})
	}
	return out
}

func storedJSON(j store.Job, lines []store.LogLine) jobJSON {
	out := jobJSON{
		ID:          j.ID,
		ChatID:      j.ChatID,
		ChatTitle:   j.ChatTitle,
		TopicID:     j.TopicID,
		Limit:       j.Limit,
		State:       j.State,
		Downloaded:  j.Downloaded,
		Indexed:     j.Indexed,
		Total:       j.Total,
		ParseErrors: j.ParseErrors,
		Error:       j.Error,
		StartedAt:   time.UnixMilli(j.StartedAt),
	}
	if j.FinishedAt != nil {
		f := time.UnixMilli(*j.FinishedAt)
		out.FinishedAt = &f
	}
	for _, l := range lines {
		out.Log = append(out.Log, entryJSON{Kind: l.Kind, Text: l.Text, At: time.UnixMilli(l.At)})
	}
	return out
}

func (e *env) printEntry(kind, text string, at time.Time) {
	color := colorDim
	switch job.EntryKind(kind) {
	case job.EntrySuccess, job.EntryIndex:
		color = colorGreen
	case job.EntryError:
		color = colorRed
	}
	fmt.Fprintf(e.out, "%s %s\n", e.colorize(color, at.Format("15:04:05")), text)
}

func downloadCmd(e *env) *cobra.Command {
	var req backend.DownloadRequest
	cmd := &cobra.Command{
		Use:   "download <chat_id>",
		Short: "Download and index messages of a chat, streaming progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseID(args[0], "chat id")
			if err != nil {
				return err
			}
			req.ChatID = chatID
			if req.TopicID, err = topicFlag(cmd); err != nil {
				return err
			}
			if err := req.Validate(); err != nil {
				return err
			}

			var (
				mu      sync.Mutex
				printed int
			)
			flush := func(s job.Snapshot) {
				mu.Lock()
				defer mu.Unlock()
				if e.jsonOut || printed >= len(s.Log) {
					return
				}
				for _, en := range s.Log[printed:] {
					e.printEntry(string(en.Kind), en.Text, en.At)
				}
				printed = len(s.Log)
			}

			j, err := e.jobs.Start(cmd.Context(), req, flush)
			if err != nil {
				return err
			}
			if !e.jsonOut {
				e.printStep("job %s started", j.ID)
			}
			select {
			case <-j.Done():
			case <-cmd.Context().Done():
				e.jobs.Cancel()
				<-j.Done()
			}

			snap := j.Snapshot()
			flush(snap)
			if e.jsonOut {
				if err := e.writeJSON(snapshotJSON(snap)); err != nil {
					return err
				}
			}
			switch {
			case snap.State == job.Complete:
				if !e.jsonOut {
					e.printSuccess("downloaded %d, indexed %d (total %d)", snap.Stats.Downloaded, snap.Stats.Indexed, snap.Stats.Total)
				}
				if snap.Stats.ParseErrors > 0 {
					e.printWarning("skipped %d malformed progress frames", snap.Stats.ParseErrors)
				}
				return nil
			case snap.Cancelled():
				return errors.New("download cancelled")
			default:
				return fmt.Errorf("download failed: %s", snap.Err)
			}
		},
	}
	cmd.Flags().Int64("topic", 0, "forum topic id")
	cmd.Flags().IntVar(&req.Limit, "limit", 100, "number of messages to download")
	cmd.Flags().Int64Var(&req.OffsetID, "offset-id", 0, "start below this message id")
	cmd.Flags().Int64Var(&req.MinID, "min-id", 0, "lowest message id (exclusive)")
	cmd.Flags().Int64Var(&req.MaxID, "max-id", 0, "highest message id (exclusive)")
	return cmd
}

func jobsCmd(e *env) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent download jobs from local history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobs, err := e.db.ListJobs(limit)
			if err != nil {
				return err
			}
			if e.jsonOut {
				out := make([]jobJSON, 0, len(jobs))
				for _, j := range jobs {
					out = append(out, storedJSON(j, nil))
				}
				return e.writeJSON(out)
			}
			if len(jobs) == 0 {
				e.printStep("no jobs recorded for profile %s", e.profile)
				return nil
			}
			rows := make([][]string, 0, len(jobs))
			for _, j := range jobs {
				title := j.ChatTitle
				if title == "" {
					title = strconv.FormatInt(j.ChatID, 10)
				}
				rows = append(rows, []string{
					j.ID,
					time.UnixMilli(j.StartedAt).Format("2006-01-02 15:04"),
					j.State,
					fmt.Sprintf("%d/%d", j.Indexed, j.Downloaded),
					oneLine(title, 40),
					oneLine(j.Error, 40),
				})
			}
			return e.table([]string{"ID", "STARTED", "STATE", "INDEXED", "CHAT", "ERROR"}, rows)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of jobs to list")
	return cmd
}

func jobCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "job <id>",
		Short: "Show one recorded job with its log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, lines, err := e.db.GetJob(args[0])
			if err != nil {
				return err
			}
			if e.jsonOut {
				return e.writeJSON(storedJSON(*j, lines))
			}
			e.printField("Job", "%s", j.ID)
			e.printField("Chat", "%s (%d)", j.ChatTitle, j.ChatID)
			if j.TopicID != nil {
				e.printField("Topic", "%d", *j.TopicID)
			}
			e.printField("State", "%s", j.State)
			e.printField("Counters", "downloaded %d, indexed %d, total %d, malformed %d", j.Downloaded, j.Indexed, j.Total, j.ParseErrors)
			e.printField("Started", "%s", time.UnixMilli(j.StartedAt).Format(time.DateTime))
			if j.FinishedAt != nil {
				e.printField("Finished", "%s", time.UnixMilli(*j.FinishedAt).Format(time.DateTime))
			}
			if j.Error != "" {
				e.printField("Error", "%s", j.Error)
			}
			fmt.Fprintln(e.out)
			for _, l := range lines {
				e.printEntry(l.Kind, l.Text, time.UnixMilli(l.At))
			}
			return nil
		},
	}
}

// --- search and answer ---

// resolveSources returns the requested chats, or every indexed chat.
func (e *env) resolveSources(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) > 0 {
		return ids, nil
	}
	sources, err := e.client.Sources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	for _, s := range sources {
		if !slices.Contains(ids, s.ChatID) {
			ids = append(ids, s.ChatID)
		}
	}
	return ids, nil
}

func (e *env) query(ctx context.Context, args []string, chats []int64, topK int, style string) (search.Query, error) {
	sources, err := e.resolveSources(ctx, chats)
	if err != nil {
		return search.Query{}, err
	}
	if topK == 0 {
		topK = e.cfg.TopK
	}
	if style == "" {
		style = e.cfg.AnswerStyle
	}
	return search.Query{Text: strings.Join(args, " "), Sources: sources, TopK: topK, Style: style}.Normalize()
}

func searchCmd(e *env) *cobra.Command {
	var (
		chats []int64
		topK  int
	)
	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Semantic search over indexed messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			q, err := e.query(ctx, args, chats, topK, "")
			if err != nil {
				return err
			}
			resp, err := e.client.Search(ctx, backend.SearchRequest{Query: q.Text, Sources: q.Sources, TopK: q.TopK})
			if err != nil {
				return err
			}
			if e.jsonOut {
				out := make([]json.RawMessage, 0, len(resp.Results))
				for _, h := range resp.Results {
					b, err := search.HitJSON(h)
					if err != nil {
						return err
					}
					out = append(out, b)
				}
				return e.writeJSON(out)
			}
			e.printStep("%d of %d matches", len(resp.Results), resp.TotalFound)
			for i, h := range resp.Results {
				e.printHit(i, h, "", "")
			}
			return nil
		},
	}
	cmd.Flags().Int64SliceVar(&chats, "chat", nil, "restrict to these chat ids (default: all indexed)")
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of results (1-50)")
	return cmd
}

func (e *env) printHit(i int, h backend.Hit, cid, link string) {
	m := h.Message
	if link == "" {
		link = m.Link()
	}
	tag := ""
	if cid != "" {
		tag = e.colorize(colorCyan, "["+cid+"] ")
	}
	chat := m.ChatTitle
	if m.TopicTitle != "" {
		chat += " / " + m.TopicTitle
	}
	fmt.Fprintf(e.out, "%2d. %s%s  %s  %s  %s\n", i+1, tag,
		e.colorize(colorBold, chat), m.Author.DisplayName(), m.Date,
		e.colorize(colorDim, fmt.Sprintf("%.3f", h.Score)))
	fmt.Fprintf(e.out, "    %s\n    %s\n", oneLine(m.Text, 300), e.colorize(colorDim, link))
}

type askHitJSON struct {
	CID  string      `json:"cid,omitempty"`
	Link string      `json:"link"`
	Hit  backend.Hit `json:"hit"`
}

type askJSON struct {
	Query       string             `json:"query"`
	Answer      *backend.Answer    `json:"answer,omitempty"`
	Citations   []backend.Citation `json:"citations,omitempty"`
	Retrieval   backend.Retrieval  `json:"retrieval"`
	AnswerError string             `json:"answer_error,omitempty"`
	Hits        []askHitJSON       `json:"hits"`
	TotalFound  int                `json:"total_found"`
	SearchError string             `json:"search_error,omitempty"`
}

func turnJSON(t *search.Turn) askJSON {
	out := askJSON{
		Query:      t.Query.Text,
		Answer:     t.Answer,
		Citations:  t.Citations,
		Retrieval:  t.Retrieval,
		TotalFound: t.TotalFound,
		Hits:       make([]askHitJSON, 0, len(t.Hits)),
	}
	if t.AnswerErr != nil {
		out.AnswerError = t.AnswerErr.Error()
	}
	if t.SearchErr != nil {
		out.SearchError = t.SearchErr.Error()
	}
	for i, h := range t.Hits {
		cid, link := hitAnchor(t, i)
		if link == "" {
			link = h.Message.Link()
		}
		out.Hits = append(out.Hits, askHitJSON{CID: cid, Link: link, Hit: h})
	}
	return out
}

func hitAnchor(t *search.Turn, i int) (string, string) {
	cid, ok := t.Index.CIDForHit(i)
	if !ok {
		return "", ""
	}
	a, _ := t.Index.Resolve(cid)
	return cid, a.Link
}

func askCmd(e *env) *cobra.Command {
	var (
		chats []int64
		topK  int
		style string
	)
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Search and generate a cited answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			q, err := e.query(ctx, args, chats, topK, style)
			if err != nil {
				return err
			}
			turn, err := e.search.Run(ctx, q, nil)
			if err != nil {
				return err
			}
			if e.jsonOut {
				if err := e.writeJSON(turnJSON(turn)); err != nil {
					return err
				}
			} else {
				e.printTurn(turn)
			}
			if turn.SearchErr != nil && turn.AnswerErr != nil {
				return fmt.Errorf("search and answer both failed: %w", errors.Join(turn.SearchErr, turn.AnswerErr))
			}
			return nil
		},
	}
	cmd.Flags().Int64SliceVar(&chats, "chat", nil, "restrict to these chat ids (default: all indexed)")
	cmd.Flags().IntVar(&topK, "top-k", 0, "messages retrieved for the answer (1-50)")
	cmd.Flags().StringVar(&style, "style", "", "answer style (default from config)")
	return cmd
}

func (e *env) printTurn(t *search.Turn) {
	switch {
	case t.AnswerErr != nil:
		e.printWarning("answer failed: %v", t.AnswerErr)
	case t.Answer != nil:
		a := t.Answer
		fmt.Fprintln(e.out, e.colorize(colorBold, a.Summary))
		for _, s := range a.Sections {
			fmt.Fprintf(e.out, "\n%s\n%s", e.colorize(colorBold, s.Title), s.Text)
			for _, cid := range s.CIDs {
				color := colorCyan
				if _, ok := t.Index.Resolve(cid); !ok {
					color = colorDim
				}
				fmt.Fprint(e.out, " "+e.colorize(color, "["+cid+"]"))
			}
			fmt.Fprintln(e.out)
		}
		for _, r := range a.Rejected {
			fmt.Fprintln(e.out, e.colorize(colorDim, fmt.Sprintf("rejected: %s (%s)", r.Claim, r.Reason)))
		}
		if r := t.Retrieval; r.TopK > 0 {
			fmt.Fprintln(e.out, e.colorize(colorDim, fmt.Sprintf("used %d of top %d, %dms", r.Used, r.TopK, r.LatencyMS)))
		}
		fmt.Fprintln(e.out)
	}

	if t.SearchErr != nil {
		e.printWarning("search failed: %v", t.SearchErr)
		return
	}
	e.printStep("%d of %d matches", len(t.Hits), t.TotalFound)
	for i, h := range t.Hits {
		cid, link := hitAnchor(t, i)
		e.printHit(i, h, cid, link)
	}
}

// --- sources ---

func sourcesCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List indexed chats and topics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sources, err := e.client.Sources(cmd.Context())
			if err != nil {
				return err
			}
			if e.jsonOut {
				return e.writeJSON(sources)
			}
			rows := make([][]string, 0, len(sources))
			for _, s := range sources {
				topic := "-"
				if s.TopicID != nil {
					topic = strconv.FormatInt(*s.TopicID, 10)
				}
				rows = append(rows, []string{strconv.FormatInt(s.ChatID, 10), topic, strconv.Itoa(s.MessagesCount), oneLine(s.Label(), 60)})
			}
			return e.table([]string{"CHAT", "TOPIC", "MESSAGES", "TITLE"}, rows)
		},
	}
}

func deleteCmd(e *env) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <chat_id>",
		Short: "Delete an indexed chat or topic from the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseID(args[0], "chat id")
			if err != nil {
				return err
			}
			topicID, err := topicFlag(cmd)
			if err != nil {
				return err
			}
			if !yes {
				return errors.New("refusing to delete without --yes")
			}
			if err := e.client.DeleteSource(cmd.Context(), chatID, topicID); err != nil {
				return err
			}
			e.chats.Invalidate()
			stats, serr := e.client.Stats(cmd.Context())
			if serr != nil {
				e.logger.Warn("reload stats after delete failed", zap.Error(serr))
			}
			if e.jsonOut {
				return e.writeJSON(map[string]any{"deleted": true, "chat_id": chatID, "topic_id": topicID, "stats": stats})
			}
			e.printSuccess("deleted source %d", chatID)
			if serr != nil {
				e.printWarning("counters unavailable: %v", serr)
				return nil
			}
			printStats(e, stats)
			return nil
		},
	}
	cmd.Flags().Int64("topic", 0, "forum topic id")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the deletion")
	return cmd
}

// --- contacts ---

func contactsCmd(e *env) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "contacts <query...>",
		Short: "Search harvested contacts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hits, err := e.client.SearchContacts(cmd.Context(), strings.Join(args, " "), topK)
			if err != nil {
				return err
			}
			if e.jsonOut {
				return e.writeJSON(hits)
			}
			rows := make([][]string, 0, len(hits))
			for _, h := range hits {
				c := h.Contact
				rows = append(rows, []string{
					strconv.FormatInt(c.ID, 10),
					fmt.Sprintf("%.3f", h.Score),
					oneLine(c.Name(), 40),
					strconv.Itoa(c.MessagesCount),
					c.Link(),
				})
			}
			return e.table([]string{"ID", "SCORE", "NAME", "MESSAGES", "LINK"}, rows)
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", search.DefaultTopK, "number of results")
	return cmd
}

func contactCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "contact <user_id>",
		Short: "Show one contact profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "user id")
			if err != nil {
				return err
			}
			d, err := e.client.GetContact(cmd.Context(), id)
			if err != nil {
				return err
			}
			if e.jsonOut {
				return e.writeJSON(d)
			}
			if d.Contact == nil {
				return fmt.Errorf("contact %d not found", id)
			}
			c := d.Contact
			e.printField("Name", "%s", c.Name())
			e.printField("Link", "%s", c.Link())
			for _, f := range []struct{ label, value string }{
				{"Username", c.Username},
				{"Phone", c.Phone},
				{"Birthday", c.Birthday},
				{"Channel", c.PersonalChannelTitle},
				{"Bio", oneLine(c.Bio, 200)},
			} {
				if f.value != "" {
					e.printField(f.label, "%s", f.value)
				}
			}
			if c.CommonChatsCount != nil {
				e.printField("Common", "%d chats", *c.CommonChatsCount)
			}
			e.printField("Messages", "%d", d.MessagesCount)
			return nil
		},
	}
}

// --- auth ---

func authCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Telegram login for the backend session",
	}
	report := func(res *backend.AuthResult, err error) error {
		if err != nil {
			return err
		}
		if e.jsonOut {
			if err := e.writeJSON(res); err != nil {
				return err
			}
		}
		switch res.Status {
		case backend.AuthCodeSent:
			e.printSuccess("code sent; run: tgragctl auth code <code>")
		case backend.Auth2FARequired:
			e.printWarning("two-factor enabled; run: tgragctl auth 2fa <password>")
		case backend.AuthAuthorized:
			e.printSuccess("authorized")
		default:
			return fmt.Errorf("auth: %s", res.Error)
		}
		return nil
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show whether the backend session is authorized",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				st, err := e.client.AuthStatus(cmd.Context())
				if err != nil {
					return err
				}
				if e.jsonOut {
					return e.writeJSON(st)
				}
				if !st.IsAuthorized {
					e.printWarning("not authorized")
					return nil
				}
				e.printSuccess("authorized as %s", accountName(st))
				return nil
			},
		},
		&cobra.Command{
			Use:   "send",
			Short: "Send a login code to the configured phone",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return report(e.client.SendCode(cmd.Context()))
			},
		},
		&cobra.Command{
			Use:   "code <code>",
			Short: "Submit the login code",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return report(e.client.VerifyCode(cmd.Context(), args[0]))
			},
		},
		&cobra.Command{
			Use:   "2fa <password>",
			Short: "Submit the cloud password",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return report(e.client.Verify2FA(cmd.Context(), args[0]))
			},
		},
	)
	return cmd
}

func accountName(st *backend.AuthStatus) string {
	if st.Username != "" {
		return "@" + st.Username
	}
	return st.Phone
}

// --- profiles ---

func profilesCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "profiles",
		Short:       "List configured profiles",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{offline: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadOrDefault(e.configFile())
			if err != nil {
				return err
			}
			def := profile.Resolve("", cfg)
			names := make([]string, 0, len(cfg.Profiles))
			for name := range cfg.Profiles {
				names = append(names, name)
			}
			sort.Strings(names)
			if e.jsonOut {
				return e.writeJSON(map[string]any{"default": def, "profiles": cfg.Profiles})
			}
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				mark := ""
				if name == def {
					mark = "*"
				}
				p := cfg.Profile(name)
				rows = append(rows, []string{mark, name, p.BackendURL, p.CacheTTL.String(), strconv.Itoa(p.TopK)})
			}
			return e.table([]string{"", "NAME", "BACKEND", "CACHE TTL", "TOP K"}, rows)
		},
	}

	var (
		backendURL string
		makeDef    bool
	)
	add := &cobra.Command{
		Use:         "add <name>",
		Short:       "Add or update a profile",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{offline: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := profile.ValidateName(name); err != nil {
				return err
			}
			path := e.configFile()
			cfg, err := config.LoadOrDefault(path)
			if err != nil {
				return err
			}
			if cfg.Profiles == nil {
				cfg.Profiles = make(map[string]config.Profile)
			}
			p := cfg.Profiles[name]
			if backendURL != "" {
				p.BackendURL = backendURL
			}
			cfg.Profiles[name] = p
			if makeDef {
				cfg.DefaultProfile = name
			}
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			e.printSuccess("saved profile %s to %s", name, path)
			return nil
		},
	}
	add.Flags().StringVar(&backendURL, "backend-url", "", "backend base URL")
	add.Flags().BoolVar(&makeDef, "default", false, "make this the default profile")
	cmd.AddCommand(add)
	return cmd
}
