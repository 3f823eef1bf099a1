package attempt

type Status int

const (
	NotVisited Status = iota
	NotAnswered
	Answered
	MarkedForReview
	AnsweredAndMarked
)

var statusNames = [...]string{
	NotVisited:        "not-visited",
	NotAnswered:       "not-answered",
	Answered:          "answered",
	MarkedForReview:   "marked",
	AnsweredAndMarked: "answered-marked",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// Classify maps the three signals to a palette status. Review beats answer,
// answer beats visit.
func Classify(visited, markedForReview, hasAnswer bool) Status {
	switch {
	case markedForReview && hasAnswer:
		return AnsweredAndMarked
	case markedForReview:
		return MarkedForReview
	case hasAnswer:
		return Answered
	case visited:
		return NotAnswered
	default:
		return NotVisited
	}
}

type PaletteCell struct {
	Index   int // zero-based within the section
	Key     Key
	Status  Status
	Current bool
}

type PaletteSection struct {
	ID    string
	Name  string
	Cells []PaletteCell
}

// Stats counts questions per status for the palette footer.
type Stats struct {
	Answered       int
	NotAnswered    int
	Marked         int
	AnsweredMarked int
	NotVisited     int
}

func (s *Stats) add(st Status) {
	switch st {
	case Answered:
		s.Answered++
	case NotAnswered:
		s.NotAnswered++
	case MarkedForReview:
		s.Marked++
	case AnsweredAndMarked:
		s.AnsweredMarked++
	default:
		s.NotVisited++
	}
}

// ForReview is everything flagged for review, answered or not.
func (s Stats) ForReview() int { return s.Marked + s.AnsweredMarked }

func (s Stats) Total() int {
	return s.Answered + s.NotAnswered + s.Marked + s.AnsweredMarked + s.NotVisited
}
