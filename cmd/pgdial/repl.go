package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/pgdial/pgdial/pkg/client"
	"github.com/pgdial/pgdial/pkg/pool"
)

// repl reads statements from stdin and executes each one on a connection
// checked out of the pool.
type repl struct {
	pool     *pool.Pool
	extended bool
	log      *slog.Logger
}

var (
	promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00CED1"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#9B30FF"))

	borderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#444466"))

	summaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)
)

func (r *repl) loop(ctx context.Context) {
	fmt.Println(summaryStyle.Render(`Type a statement and press enter. \q quits, \help shows commands.`))
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print(promptStyle.Render("pgdial=> "))
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case `\q`, `\quit`, "exit", "quit":
			return
		case `\help`, `\?`:
			r.printHelp()
			continue
		case `\extended`:
			r.extended = !r.extended
			fmt.Println(summaryStyle.Render(fmt.Sprintf("extended protocol: %v", r.extended)))
			continue
		}

		if err := r.runOne(ctx, line); err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
		}
		fmt.Println()
	}
}

func (r *repl) printHelp() {
	fmt.Println(summaryStyle.Render(`  \q          quit`))
	fmt.Println(summaryStyle.Render(`  \extended   toggle the extended query protocol`))
	fmt.Println(summaryStyle.Render(`  \help       show this help`))
}

// runOne executes a single statement and prints the result.
func (r *repl) runOne(ctx context.Context, sql string) error {
	pc, err := r.pool.Get(ctx)
	if err != nil {
		return err
	}
	defer pc.Release()

	start := time.Now()
	var res client.QueryResult
	if r.extended {
		res, err = pc.ExecuteQueryExtended(ctx, sql, nil)
	} else {
		res, err = pc.ExecuteQuery(ctx, sql, nil)
	}
	if err != nil {
		return err
	}

	r.printResult(res, time.Since(start))
	return nil
}

func (r *repl) printResult(res client.QueryResult, elapsed time.Duration) {
	switch res.Kind() {
	case client.KindRows:
		r.printRows(res.Rows())
		noun := "rows"
		if len(res.Rows()) == 1 {
			noun = "row"
		}
		fmt.Println(summaryStyle.Render(
			fmt.Sprintf("(%d %s, %s)", len(res.Rows()), noun, elapsed.Round(time.Microsecond))))

	case client.KindCount:
		fmt.Println(summaryStyle.Render(
			fmt.Sprintf("OK, %d rows affected (%s)", res.Count(), elapsed.Round(time.Microsecond))))

	default:
		fmt.Println(summaryStyle.Render(
			fmt.Sprintf("OK (%s)", elapsed.Round(time.Microsecond))))
	}
}

// printRows renders rows as an aligned table. Column order follows the
// sorted key set of the first row; rows are maps, so the wire order is
// not recoverable here.
func (r *repl) printRows(rows []client.Row) {
	if len(rows) == 0 {
		return
	}

	columns := make([]string, 0, len(rows[0]))
	for name := range rows[0] {
		columns = append(columns, name)
	}
	sort.Strings(columns)

	widths := make([]int, len(columns))
	for i, name := range columns {
		widths[i] = len(name)
		for _, row := range rows {
			if v, ok := row.Get(name); ok && len(v) > widths[i] {
				widths[i] = len(v)
			}
		}
	}

	headerCells := make([]string, len(columns))
	for i, name := range columns {
		headerCells[i] = headerStyle.Render(pad(name, widths[i]))
	}
	sep := borderStyle.Render("|")
	fmt.Println(" " + strings.Join(headerCells, " "+sep+" "))

	rule := make([]string, len(columns))
	for i := range columns {
		rule[i] = strings.Repeat("-", widths[i]+2)
	}
	fmt.Println(borderStyle.Render(strings.Join(rule, "+")))

	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, name := range columns {
			v, _ := row.Get(name)
			cells[i] = pad(v, widths[i])
		}
		fmt.Println(" " + strings.Join(cells, " "+sep+" "))
	}
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
