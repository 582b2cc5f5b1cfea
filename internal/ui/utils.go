// Package ui is the interactive terminal front end of the downloader.
package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/forest-guardian/s2-downloader/internal/batch"
	"github.com/forest-guardian/s2-downloader/internal/export"
)

var (
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	successColor = color.New(color.FgGreen)
	infoColor    = color.New(color.FgBlue)
)

// Console reads answers and prints colored messages.
type Console struct {
	in  *bufio.Reader
	out io.Writer
	now func() time.Time

	mu     sync.Mutex
	bar    *progressbar.ProgressBar
	closed bool
}

func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out, now: time.Now}
}

// Stdio is a console on the process terminal.
func Stdio() *Console {
	return NewConsole(os.Stdin, os.Stdout)
}

// PrintBanner prints the application name in large letters.
func (c *Console) PrintBanner() {
	color.New(color.FgCyan).Fprintln(c.out, figure.NewFigure("S2", "isometric1", true).String())
	color.New(color.FgCyan).Fprintln(c.out, figure.NewFigure("Downloader", "standard", true).String())
	fmt.Fprintln(c.out)
}

func (c *Console) PrintWarning(message string) {
	warningColor.Fprintln(c.out, "\nWarning:")
	warningColor.Fprintln(c.out, message)
}

func (c *Console) PrintError(message string) {
	errorColor.Fprintf(c.out, "\nError: %s\n", message)
}

func (c *Console) PrintSuccess(message string) {
	successColor.Fprintf(c.out, "\n%s\n", message)
}

func (c *Console) PrintInfo(message string) {
	infoColor.Fprint(c.out, message)
}

// PrintList prints a titled bullet list.
func (c *Console) PrintList(title string, items []string) {
	successColor.Fprintf(c.out, "\n%s\n", title)
	for _, it := range items {
		successColor.Fprintf(c.out, "- %s\n", it)
	}
}

func (c *Console) ReadString(prompt string) string {
	c.PrintInfo(prompt)
	input, err := c.in.ReadString('\n')
	if err != nil && input == "" {
		c.closed = true
	}
	return strings.TrimSpace(input)
}

// Closed reports whether the input ran out.
func (c *Console) Closed() bool {
	return c.closed
}

// ReadDefault returns def when the answer is empty.
func (c *Console) ReadDefault(prompt, def string) string {
	if input := c.ReadString(fmt.Sprintf("%s [%s]: ", prompt, def)); input != "" {
		return input
	}
	return def
}

func (c *Console) ReadInt(prompt string, min, max int) (int, error) {
	input := c.ReadString(prompt)
	value, err := strconv.Atoi(input)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", input)
	}
	if value < min || value > max {
		return 0, fmt.Errorf("value must be between %d and %d", min, max)
	}
	return value, nil
}

// ReadFloat reads a number in [min, max], def when the answer is empty.
func (c *Console) ReadFloat(prompt string, def, min, max float64) (float64, error) {
	input := c.ReadString(fmt.Sprintf("%s [%v]: ", prompt, def))
	if input == "" {
		return def, nil
	}
	value, err := strconv.ParseFloat(input, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", input)
	}
	if value < min || value > max {
		return 0, fmt.Errorf("value must be between %v and %v", min, max)
	}
	return value, nil
}

// ReadDate accepts YYYY-MM-DD or "today".
func (c *Console) ReadDate(prompt string) (time.Time, error) {
	input := c.ReadString(prompt)
	if input == "today" {
		return batch.Day(c.now()), nil
	}
	date, err := batch.ParseDate(input)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format: %s. Please use YYYY-MM-DD", input)
	}
	return date, nil
}

func (c *Console) ReadDateRange() (time.Time, time.Time, error) {
	start, err := c.ReadDate("Enter the start date (YYYY-MM-DD): ")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := c.ReadDate("Enter the end date (YYYY-MM-DD | today): ")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func (c *Console) ReadPositiveInt(prompt string, def int) (int, error) {
	input := c.ReadString(fmt.Sprintf("%s [%d]: ", prompt, def))
	if input == "" {
		return def, nil
	}
	value, err := strconv.Atoi(input)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid number: %s. Please enter a positive integer", input)
	}
	return value, nil
}

// ReadYesNo is true for y or yes, def when the answer is empty.
func (c *Console) ReadYesNo(prompt string, def bool) bool {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	switch strings.ToLower(c.ReadString(fmt.Sprintf("%s [%s]: ", prompt, hint))) {
	case "":
		return def
	case "y", "yes":
		return true
	default:
		return false
	}
}

// Progress is an export progress callback drawing a spinner bar on the
// console. FinishProgress closes the bar of the current run.
func (c *Console) Progress(job export.Job, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bar == nil {
		c.bar = progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(c.out),
			progressbar.OptionSetDescription("Submitting export tasks"),
			progressbar.OptionShowCount(),
		)
	}
	if err != nil {
		c.bar.Describe("Failed " + job.Name)
	} else {
		c.bar.Describe("Submitted " + job.Name)
	}
	_ = c.bar.Add(1)
}

func (c *Console) FinishProgress() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bar != nil {
		_ = c.bar.Finish()
		fmt.Fprintln(c.out)
		c.bar = nil
	}
}
