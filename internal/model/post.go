package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type Post struct {
	ID            int64
	CreatedAt     time.Time
	Content       string
	ImagePaths    []string
	LinkedTaskIDs []int64
}

func (p Post) Validate() error {
	if strings.TrimSpace(p.Content) == "" {
		return fmt.Errorf("%w: post content", ErrMissingField)
	}
	if p.CreatedAt.IsZero() {
		return fmt.Errorf("%w: post created_at", ErrMissingField)
	}
	return nil
}

type FeedKind string

const (
	FeedPost FeedKind = "post"
	FeedTask FeedKind = "task"
)

type FeedItem struct {
	Kind FeedKind
	At   time.Time
	Post *Post
	Task *TaskRecord
}

// BuildFeed merges notes with task records that are completed or already due,
// newest first.
func BuildFeed(posts []Post, tasks []TaskRecord, now time.Time) []FeedItem {
	out := make([]FeedItem, 0, len(posts)+len(tasks))
	for i := range posts {
		p := posts[i]
		out = append(out, FeedItem{Kind: FeedPost, At: p.CreatedAt, Post: &p})
	}
	for i := range tasks {
		t := tasks[i]
		if t.Status == TaskStatusCompleted || !t.TriggerAt().After(now) {
			out = append(out, FeedItem{Kind: FeedTask, At: t.TriggerAt(), Task: &t})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].At.After(out[j].At)
	})
	return out
}
