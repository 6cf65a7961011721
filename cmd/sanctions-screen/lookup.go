package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/sanctions-screen/config"
	"github.com/aluiziolira/sanctions-screen/models"
	"github.com/aluiziolira/sanctions-screen/scraper"
)

const lookupMaxLinks = 5

var quitCommands = map[string]bool{":q": true, ":quit": true, "quit": true, "exit": true}

var (
	nameStyle    = lipgloss.NewStyle().Bold(true)
	matchStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#FF6B6B"})
	noMatchStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#7FD962"})
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B26B00", Dark: "#FFB454"})
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6C7680", Dark: "#5C6773"})
)

func newLookupCmd(transport http.RoundTripper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup [name]",
		Short: "Look up a single name, or read names interactively from stdin",
		Example: `  sanctions-screen lookup "Jane Doe"
  sanctions-screen lookup --max-links 10`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, nil, map[string]any{config.KeyMaxLinks: lookupMaxLinks})
			if err != nil {
				return err
			}
			closeLog := setupLogging(cmd.ErrOrStderr(), cfg)
			defer closeLog()

			s, err := newScraper(cfg, transport)
			if err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout())

			if name := strings.TrimSpace(strings.Join(args, " ")); name != "" {
				result := s.Query(name)
				out.Print(result)
				if result.Status == models.StatusError {
					return &exitError{code: exitSetup, err: fmt.Errorf("lookup %q failed: %s", name, result.Error)}
				}
				return nil
			}
			return interactiveLookup(cmd.Context(), cmd.InOrStdin(), out, s)
		},
	}
	cmd.Flags().Int(config.KeyMaxLinks, lookupMaxLinks, "Entity links shown per name")
	return cmd
}

// interactiveLookup queries each line read from in until EOF or a quit
// command.
func interactiveLookup(ctx context.Context, in io.Reader, out *printer, s *scraper.Scraper) error {
	scanner := bufio.NewScanner(in)
	for {
		out.Prompt()
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			return nil
		}
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		if quitCommands[strings.ToLower(name)] {
			return nil
		}
		out.Print(s.Query(name))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read names: %w", err)
	}
	out.Newline()
	return nil
}

type printer struct {
	w      io.Writer
	styled bool
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, styled: isTerminal(w)}
}

func (p *printer) render(style lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return style.Render(text)
}

func (p *printer) Prompt() {
	fmt.Fprint(p.w, p.render(dimStyle, "name (:q to quit)> "))
}

func (p *printer) Newline() {
	fmt.Fprintln(p.w)
}

// Print writes one result as a short report.
func (p *printer) Print(r *models.SearchResult) {
	name := p.render(nameStyle, r.QueryName)
	switch r.Status {
	case models.StatusMatch:
		fmt.Fprintf(p.w, "%s: %s\n", name, p.render(matchStyle, fmt.Sprintf("MATCH (%d %s)", r.MatchCount, plural(r.MatchCount, "entity", "entities"))))
	case models.StatusNoMatch:
		fmt.Fprintf(p.w, "%s: %s\n", name, p.render(noMatchStyle, "no match"))
	case models.StatusUnknown:
		fmt.Fprintf(p.w, "%s: %s\n", name, p.render(warnStyle, "unknown, check the search page"))
	case models.StatusError:
		fmt.Fprintf(p.w, "%s: %s\n", name, p.render(warnStyle, "error: "+r.Error))
	}
	fmt.Fprintf(p.w, "  %s\n", p.render(dimStyle, r.SearchURL))

	for i, link := range r.Entities {
		fmt.Fprintf(p.w, "  %d. %s\n", i+1, link.String())
	}
	if hidden := r.MatchCount - len(r.Entities); hidden > 0 {
		fmt.Fprintf(p.w, "  %s\n", p.render(dimStyle, fmt.Sprintf("... %d more on the search page", hidden)))
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
