package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mind-engage/examportal/pkg/attempt"
)

var errUsage = errors.New("usage")

const helpText = `commands:
  show                 current question
  select <A-D>         choose an option (mcq)
  number <value>       enter a value (numerical); blank clears
  clear                clear the response
  next | prev          move; answers are saved as you go
  mark                 mark for review and move on
  jump <sec> <q>       go to a question (1-based)
  section <sec>        go to the first question of a section
  palette | stats      question statuses
  time                 remaining time
  submit [yes]         submit the attempt
  result               score, once submitted
  quit`

// console drives a Session from line commands.
type console struct {
	s   *attempt.Session
	out io.Writer
}

func (c *console) run(ctx context.Context, in io.Reader) error {
	c.show()
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprintf(c.out, "[%s] > ", attempt.FormatRemaining(c.s.Remaining()))
		if !sc.Scan() {
			return sc.Err()
		}
		quit, err := c.exec(ctx, sc.Text())
		if err != nil {
			fmt.Fprintf(c.out, "! %v\n", err)
		}
		if quit || ctx.Err() != nil {
			return nil
		}
	}
}

func (c *console) exec(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		fmt.Fprintln(c.out, helpText)
	case "show":
		c.show()
	case "select", "s":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: select <A-D>", errUsage)
		}
		if err := c.s.SelectOption(strings.ToUpper(args[0])); err != nil {
			return false, err
		}
		c.show()
	case "number", "num":
		if err := c.s.EnterNumericalText(strings.Join(args, " ")); err != nil {
			return false, err
		}
		c.show()
	case "clear":
		if err := c.s.ClearResponse(); err != nil {
			return false, err
		}
		c.show()
	case "next", "n":
		if !c.s.SaveAndNext() {
			fmt.Fprintln(c.out, "last question")
		}
		c.show()
	case "prev", "p":
		if !c.s.Prev() {
			fmt.Fprintln(c.out, "first question")
		}
		c.show()
	case "mark", "m":
		if err := c.s.MarkForReviewAndNext(); err != nil {
			return false, err
		}
		c.show()
	case "jump", "j":
		if len(args) != 2 {
			return false, fmt.Errorf("%w: jump <section> <question>", errUsage)
		}
		sec, err1 := strconv.Atoi(args[0])
		q, err2 := strconv.Atoi(args[1])
		if err1 != nil || err2 != nil {
			return false, fmt.Errorf("%w: jump <section> <question>", errUsage)
		}
		if err := c.s.JumpTo(sec-1, q-1); err != nil {
			return false, err
		}
		c.show()
	case "section":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: section <n>", errUsage)
		}
		sec, err := strconv.Atoi(args[0])
		if err != nil {
			return false, fmt.Errorf("%w: section <n>", errUsage)
		}
		if err := c.s.JumpToSection(sec - 1); err != nil {
			return false, err
		}
		c.show()
	case "palette":
		c.palette()
	case "stats":
		c.stats()
	case "time":
		rem := c.s.Remaining()
		fmt.Fprintf(c.out, "%s left (%s)\n", attempt.FormatRemaining(rem), attempt.UrgencyOf(rem))
	case "submit":
		if c.s.State() != attempt.InProgress {
			fmt.Fprintf(c.out, "attempt is %s\n", c.s.State())
			return false, nil
		}
		if len(args) == 0 || strings.ToLower(args[0]) != "yes" {
			c.stats()
			fmt.Fprintln(c.out, "submitting is final. type 'submit yes' to confirm")
			return false, nil
		}
		if err := c.s.Submit(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(c.out, "submitted")
		return true, nil
	case "result":
		res, err := c.s.Result(ctx)
		if err != nil {
			return false, err
		}
		writeResult(c.out, res)
	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return false, nil
}

func (c *console) show() {
	sec, q := c.s.Current()
	pos := c.s.Position()
	k := attempt.Key{SectionID: sec.ID, QuestionID: q.Question.ID}
	fmt.Fprintf(c.out, "%s  Q%d/%d  [%s]  +%g/-%g  %s\n",
		sec.Name, pos.Question+1, len(sec.Questions), q.Question.Type,
		q.PositiveMarks, q.NegativeMarks, c.s.StatusOf(k))
	if q.Question.ImageURL != "" {
		fmt.Fprintf(c.out, "  %s\n", q.Question.ImageURL)
	}
	if rec, ok := c.s.Answer(k); ok && rec.HasAnswer() {
		fmt.Fprintf(c.out, "  your answer: %s\n", answerText(rec))
	}
}

func (c *console) palette() {
	for _, ps := range c.s.Palette() {
		var b strings.Builder
		for _, cell := range ps.Cells {
			cur := " "
			if cell.Current {
				cur = "*"
			}
			fmt.Fprintf(&b, " %s%d:%s", cur, cell.Index+1, cell.Status)
		}
		fmt.Fprintf(c.out, "%s:%s\n", ps.Name, b.String())
	}
}

func (c *console) stats() {
	st := c.s.Stats()
	fmt.Fprintf(c.out, "answered %d, not answered %d, marked %d, answered+marked %d, not visited %d (of %d)\n",
		st.Answered, st.NotAnswered, st.Marked, st.AnsweredMarked, st.NotVisited, st.Total())
}

func answerText(r attempt.AnswerRecord) string {
	switch {
	case r.SelectedOption != nil:
		return *r.SelectedOption
	case r.NumericalAnswer != nil:
		return strconv.FormatFloat(*r.NumericalAnswer, 'g', -1, 64)
	}
	return "-"
}

func writeResult(out io.Writer, res attempt.Result) {
	fmt.Fprintf(out, "%s: %g / %g\n", res.Test.Name, res.TotalScore, res.MaxScore)
	for _, a := range res.Answers {
		mark := "x"
		if a.IsCorrect {
			mark = "ok"
		}
		fmt.Fprintf(out, "  %s/%s  %s  %s  %+g\n", a.SectionID, a.QuestionID, answerText(a.AnswerRecord), mark, a.MarksAwarded)
	}
}
