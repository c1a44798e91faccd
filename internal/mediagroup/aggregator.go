package mediagroup

import (
	"fmt"
	"sync"
	"time"
)

// Item is a single photo from a Telegram album.
type Item struct {
	ChatID       int64
	UserID       int64
	Username     string
	MediaGroupID string
	Caption      string
	FileID       string
}

// Album is a debounced media group. The convention for render requests
// is style reference first, floor plan second; Reference and FloorPlan
// expose that pairing.
type Album struct {
	ChatID   int64
	UserID   int64
	Username string
	Caption  string
	FileIDs  []string
}

// Reference returns the file id of the style exemplar, the first photo
// of the album.
func (a Album) Reference() string {
	if len(a.FileIDs) == 0 {
		return ""
	}
	return a.FileIDs[0]
}

// FloorPlan returns the file id of the plan to render, the second photo
// of the album.
func (a Album) FloorPlan() string {
	if len(a.FileIDs) < 2 {
		return ""
	}
	return a.FileIDs[1]
}

func (a Album) Complete() bool {
	return len(a.FileIDs) >= 2
}

type Options struct {
	Debounce time.Duration
	OnFlush  func(Album)
}

// Aggregator collects album photos, which Telegram delivers as separate
// updates, and flushes the whole album once no new photo arrives within
// the debounce window.
type Aggregator struct {
	mu       sync.Mutex
	debounce time.Duration
	onFlush  func(Album)
	albums   map[string]*pendingAlbum
}

type pendingAlbum struct {
	album Album
	timer *time.Timer
}

func New(opts Options) *Aggregator {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 1200 * time.Millisecond
	}

	return &Aggregator{
		debounce: debounce,
		onFlush:  opts.OnFlush,
		albums:   make(map[string]*pendingAlbum),
	}
}

func (a *Aggregator) Add(item Item) {
	if item.MediaGroupID == "" || item.FileID == "" {
		return
	}

	key := makeKey(item.ChatID, item.MediaGroupID)

	a.mu.Lock()
	defer a.mu.Unlock()

	pa, ok := a.albums[key]
	if !ok {
		pa = &pendingAlbum{
			album: Album{
				ChatID:   item.ChatID,
				UserID:   item.UserID,
				Username: item.Username,
				Caption:  item.Caption,
				FileIDs:  []string{item.FileID},
			},
		}
		a.albums[key] = pa
	} else {
		pa.album.FileIDs = append(pa.album.FileIDs, item.FileID)
		if item.Caption != "" {
			pa.album.Caption = item.Caption
		}
	}

	if pa.timer != nil {
		pa.timer.Stop()
	}
	pa.timer = time.AfterFunc(a.debounce, func() {
		a.flush(key)
	})
}

func (a *Aggregator) flush(key string) {
	a.mu.Lock()
	pa, ok := a.albums[key]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.albums, key)
	album := pa.album
	onFlush := a.onFlush
	a.mu.Unlock()

	if onFlush != nil {
		onFlush(album)
	}
}

func makeKey(chatID int64, mediaGroupID string) string {
	return fmt.Sprintf("%d:%s", chatID, mediaGroupID)
}
