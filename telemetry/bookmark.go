package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkSettled   BookmarkType = "settled"
	BookmarkBlowup    BookmarkType = "blowup"
	BookmarkEscape    BookmarkType = "escape"
	BookmarkImpact    BookmarkType = "impact"
	BookmarkAvalanche BookmarkType = "avalanche"
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Step        uint64       `csv:"step"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"step", b.Step,
		"description", b.Description,
	)
}

// BookmarkDetector detects notable moments in a run.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	peakKinetic  float64 // highest kinetic energy since the pile last settled
	quietWindows int     // consecutive windows below the settle threshold
	settled      bool
	lastEscaped  int
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 3 {
		historySize = 3
	}
	return &BookmarkDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	if b := bd.checkSettled(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkEscape(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if len(bd.getHistory()) >= 2 {
		if b := bd.checkBlowup(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkImpact(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkAvalanche(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}

	bd.addToHistory(stats)
	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []WindowStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

// checkSettled fires once when kinetic energy stays under 1% of its peak
// for three windows. It re-arms when energy climbs back over 10% of peak.
func (bd *BookmarkDetector) checkSettled(stats WindowStats) *Bookmark {
	ke := stats.KineticEnergy
	if ke > bd.peakKinetic {
		bd.peakKinetic = ke
	}
	if bd.peakKinetic == 0 {
		return nil
	}

	if bd.settled {
		if ke > 0.1*bd.peakKinetic {
			bd.settled = false
			bd.quietWindows = 0
		}
		return nil
	}

	if ke < 0.01*bd.peakKinetic {
		bd.quietWindows++
	} else {
		bd.quietWindows = 0
	}
	if bd.quietWindows < 3 {
		return nil
	}

	bd.settled = true
	return &Bookmark{
		Type:        BookmarkSettled,
		Step:        stats.WindowEndStep,
		Description: fmt.Sprintf("Kinetic energy %.3g J settled below 1%% of peak %.3g J", ke, bd.peakKinetic),
	}
}

func (bd *BookmarkDetector) checkEscape(stats WindowStats) *Bookmark {
	prev := bd.lastEscaped
	bd.lastEscaped = stats.Escaped
	if stats.Escaped <= prev {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkEscape,
		Step:        stats.WindowEndStep,
		Description: fmt.Sprintf("%d particles left the field grid (was %d)", stats.Escaped, prev),
	}
}

// checkBlowup flags a max speed far outside the recent distribution, the
// usual sign of a timestep too large for the contact stiffness.
func (bd *BookmarkDetector) checkBlowup(stats WindowStats) *Bookmark {
	var sum float64
	history := bd.getHistory()
	for _, h := range history {
		sum += h.SpeedP90
	}
	avg := sum / float64(len(history))
	if avg == 0 || stats.SpeedMax < 5 {
		return nil
	}
	if stats.SpeedMax > avg*10 {
		return &Bookmark{
			Type:        BookmarkBlowup,
			Step:        stats.WindowEndStep,
			Description: fmt.Sprintf("Max speed %.2f m/s is %.1fx the average p90 (%.2f)", stats.SpeedMax, stats.SpeedMax/avg, avg),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkImpact(stats WindowStats) *Bookmark {
	var sum float64
	history := bd.getHistory()
	for _, h := range history {
		sum += h.ObjectForceMean
	}
	avg := sum / float64(len(history))
	if stats.ObjectForceMean == 0 {
		return nil
	}
	if avg == 0 || stats.ObjectForceMean > avg*2 {
		return &Bookmark{
			Type:        BookmarkImpact,
			Step:        stats.WindowEndStep,
			Description: fmt.Sprintf("Object contact force %.3g N over rolling average %.3g N", stats.ObjectForceMean, avg),
		}
	}
	return nil
}

// checkAvalanche flags a sharp drop of the pile's mean height.
func (bd *BookmarkDetector) checkAvalanche(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	prev := history[(bd.historyIdx-1+len(history))%len(history)]
	spread := prev.HeightMax - prev.HeightMin
	if spread <= 0 {
		return nil
	}
	drop := prev.HeightMean - stats.HeightMean
	if drop > 0.25*spread && stats.SpeedP90 > prev.SpeedP90 {
		return &Bookmark{
			Type:        BookmarkAvalanche,
			Step:        stats.WindowEndStep,
			Description: fmt.Sprintf("Mean height fell %.2f m (%.0f%% of pile height)", drop, drop/spread*100),
		}
	}
	return nil
}
