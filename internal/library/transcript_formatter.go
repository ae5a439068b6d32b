package library

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/foxseedlab/wwdcsync/internal/repository"
)

// TranscriptText renders a session transcript as plain text with one
// timestamped line per annotation. It returns nil while the session has not
// been indexed and ErrNotFound for an unknown session.
func (l *Library) TranscriptText(ctx context.Context, key string) ([]byte, error) {
	s, err := l.repo.Session(ctx, key)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, repository.ErrNotFound
	}
	tr, err := l.repo.Transcript(ctx, key)
	if err != nil {
		return nil, err
	}
	if tr == nil {
		return nil, nil
	}
	return buildTranscriptText(*s, *tr), nil
}

func buildTranscriptText(s repository.Session, tr repository.Transcript) []byte {
	lines := []string{
		fmt.Sprintf("Title: %s", s.Title),
		fmt.Sprintf("Session: %s %d", s.Event(), s.ID),
		fmt.Sprintf("Details: %s", s.Subtitle()),
		fmt.Sprintf("Link: %s", s.ShareURL()),
		"",
	}
	for _, line := range tr.Lines {
		elapsed := time.Duration(line.Timecode * float64(time.Second))
		if elapsed < 0 {
			elapsed = 0
		}
		lines = append(lines, fmt.Sprintf("%s %s", formatElapsedHMS(elapsed), strings.TrimSpace(line.Text)))
	}
	return []byte(strings.Join(lines, "\n"))
}

func formatElapsedHMS(d time.Duration) string {
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	sec := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
}
