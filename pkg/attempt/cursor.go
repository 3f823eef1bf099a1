package attempt

import "sync"

type Position struct {
	Section  int
	Question int
}

// Cursor walks a validated Test section by section. Every move, including
// the initial position, reports the destination to onVisit before returning.
type Cursor struct {
	mu      sync.Mutex
	test    Test
	pos     Position
	onVisit func(Key)
}

func NewCursor(t Test, onVisit func(Key)) *Cursor {
	c := &Cursor{test: t, onVisit: onVisit}
	c.visit()
	return c
}

func (c *Cursor) Position() Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos
}

// Current returns the section and entry under the cursor.
func (c *Cursor) Current() (Section, QuestionEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.test.Sections[c.pos.Section]
	return s, s.Questions[c.pos.Question]
}

func (c *Cursor) Key() Key {
	s, q := c.Current()
	return Key{SectionID: s.ID, QuestionID: q.Question.ID}
}

// Next moves forward, crossing into the next section; no-op at the very end.
func (c *Cursor) Next() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pos
	switch {
	case p.Question < len(c.test.Sections[p.Section].Questions)-1:
		p.Question++
	case p.Section < len(c.test.Sections)-1:
		p = Position{Section: p.Section + 1}
	default:
		return false
	}
	c.pos = p
	c.visit()
	return true
}

// Prev mirrors Next, landing on the last question of the previous section.
func (c *Cursor) Prev() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pos
	switch {
	case p.Question > 0:
		p.Question--
	case p.Section > 0:
		p.Section--
		p.Question = len(c.test.Sections[p.Section].Questions) - 1
	default:
		return false
	}
	c.pos = p
	c.visit()
	return true
}

func (c *Cursor) JumpTo(section, question int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if section < 0 || section >= len(c.test.Sections) {
		return ErrOutOfRange
	}
	if question < 0 || question >= len(c.test.Sections[section].Questions) {
		return ErrOutOfRange
	}
	c.pos = Position{Section: section, Question: question}
	c.visit()
	return nil
}

// JumpToSection is the section tab: first question of the section.
func (c *Cursor) JumpToSection(section int) error {
	return c.JumpTo(section, 0)
}

func (c *Cursor) AtStart() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos == Position{}
}

func (c *Cursor) AtEnd() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	last := len(c.test.Sections) - 1
	return c.pos.Section == last && c.pos.Question == len(c.test.Sections[last].Questions)-1
}

// visit runs with c.mu held.
func (c *Cursor) visit() {
	if c.onVisit == nil {
		return
	}
	s := c.test.Sections[c.pos.Section]
	c.onVisit(Key{SectionID: s.ID, QuestionID: s.Questions[c.pos.Question].Question.ID})
}
