// Package feed reads timelines and author feeds and publishes posts for the
// current session.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophsky/internal/records"
	"github.com/dmitrijs2005/gophsky/internal/session"
	"github.com/dmitrijs2005/gophsky/internal/xrpc"
)

const (
	nsidGetTimeline   = "app.bsky.feed.getTimeline"
	nsidGetAuthorFeed = "app.bsky.feed.getAuthorFeed"
	nsidCreateRecord  = "com.atproto.repo.createRecord"
)

// MaxPostLength is the grapheme limit enforced by the AppView; the client
// checks the cheaper rune count.
const MaxPostLength = 300

var (
	ErrEmptyPost   = errors.New("post is empty")
	ErrPostTooLong = errors.New("post exceeds 300 characters")
)

// Service is safe for concurrent use.
type Service struct {
	pds    *xrpc.Client
	tokens session.TokenSource
	now    func() time.Time
}

func NewService(pds *xrpc.Client, tokens session.TokenSource) *Service {
	return &Service{pds: pds, tokens: tokens, now: time.Now}
}

// Timeline returns one page of the home timeline. An empty cursor starts
// from the newest item; limit <= 0 uses the server default.
func (s *Service) Timeline(ctx context.Context, cursor string, limit int) (records.Feed, error) {
	return s.page(ctx, nsidGetTimeline, pageParams(nil, cursor, limit))
}

// AuthorFeed returns one page of posts and reposts by actor (DID or handle).
func (s *Service) AuthorFeed(ctx context.Context, actor, cursor string, limit int) (records.Feed, error) {
	if strings.TrimSpace(actor) == "" {
		return records.Feed{}, fmt.Errorf("author feed: empty actor")
	}
	return s.page(ctx, nsidGetAuthorFeed, pageParams(map[string]string{"actor": actor}, cursor, limit))
}

func (s *Service) page(ctx context.Context, nsid string, params map[string]string) (records.Feed, error) {
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return records.Feed{}, err
	}
	var out records.Feed
	if err := s.pds.Query(ctx, nsid, token, params, &out); err != nil {
		return records.Feed{}, fmt.Errorf("%s: %w", nsid, err)
	}
	return out, nil
}

func pageParams(params map[string]string, cursor string, limit int) map[string]string {
	if params == nil {
		params = map[string]string{}
	}
	if cursor != "" {
		params["cursor"] = cursor
	}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	return params
}

type createRecordInput struct {
	Repo       string             `json:"repo"`
	Collection string             `json:"collection"`
	Record     records.PostRecord `json:"record"`
}

// CreatePost writes post to the current account's repository. A missing
// CreatedAt is stamped with the current time.
func (s *Service) CreatePost(ctx context.Context, post records.PostRecord) (records.StrongRef, error) {
	if strings.TrimSpace(post.Text) == "" && post.Embed == nil {
		return records.StrongRef{}, ErrEmptyPost
	}
	if len([]rune(post.Text)) > MaxPostLength {
		return records.StrongRef{}, ErrPostTooLong
	}
	if post.CreatedAt == "" {
		post.CreatedAt = records.FormatTime(s.now())
	}

	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return records.StrongRef{}, err
	}
	sess, ok := s.tokens.Current()
	if !ok {
		return records.StrongRef{}, session.ErrNoActiveSession
	}

	in := createRecordInput{Repo: sess.DID, Collection: records.TypePost, Record: post}
	var out records.StrongRef
	if err := s.pds.Procedure(ctx, nsidCreateRecord, token, in, &out); err != nil {
		return records.StrongRef{}, fmt.Errorf("create post: %w", err)
	}
	if out.URI == "" || out.CID == "" {
		return records.StrongRef{}, fmt.Errorf("create post: %w", xrpc.ErrInvalidResponse)
	}
	return out, nil
}

// NewVideoPost builds a post embedding an uploaded video blob.
func NewVideoPost(text string, blob records.BlobRef, alt string, createdAt time.Time) records.PostRecord {
	p := records.NewPostRecord(text, createdAt)
	p.Embed = &records.Embed{
		Type:  records.TypeEmbedVideo,
		Video: &records.Video{Video: blob, Alt: alt},
	}
	return p
}
