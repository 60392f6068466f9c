// Package shell provides the interactive storyloom REPL. Backslash
// commands manage stories; every other line continues the active story.
// Rendering goes through TermSink, which also backs the suggestion
// number picking.
package shell

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell/v2"

	"storyloom/internal/llm"
	"storyloom/internal/logger"
	"storyloom/internal/store"
	"storyloom/internal/story"
	"storyloom/internal/version"
)

// console is the slice of ishell.Context the command handlers need,
// kept narrow so tests can drive them without a terminal.
type console interface {
	Print(val ...interface{})
	Printf(format string, val ...interface{})
	Println(val ...interface{})
	ReadLine() string
	Stop()
}

const helpText = `Commands:
  \new [opening line]   Start a new story; with no argument it asks for a genre first
  \stories              List saved stories
  \open <n or title>    Resume a story
  \again                Retell the last reply
  \persona [text]       Show or replace the storyteller persona
  \genres               List genre presets
  \export [path]        Write the story to a markdown file
  \status               Show story, backend, and autosave state
  \help                 Show this help
  \exit                 Leave; the story is saved first

Anything else you type continues the story.
After a reply, a bare 1, 2, or 3 picks one of its suggestions.`

// Shell is the interactive REPL around a TurnController.
type Shell struct {
	sh         *ishell.Shell
	controller *story.TurnController
	chats      *store.ChatStore
	backend    llm.Client
	sink       *TermSink
}

// New wires the REPL. The sink must be the same one the controller
// renders through.
func New(controller *story.TurnController, chats *store.ChatStore, backend llm.Client, sink *TermSink) *Shell {
	s := &Shell{
		controller: controller,
		chats:      chats,
		backend:    backend,
		sink:       sink,
	}

	sh := ishell.New()
	sh.SetPrompt("storyloom> ")

	// Remove built-ins so every line routes through processInput.
	sh.DeleteCmd("exit")
	sh.DeleteCmd("help")
	sh.NotFound(s.processInput)

	s.sh = sh
	return s
}

// Run prints the banner, restores the last-active story, and blocks in
// the input loop until \exit or EOF. The pending save is flushed by the
// caller after Run returns.
func (s *Shell) Run() {
	for _, line := range s.bannerLines() {
		s.sh.Println(line)
	}

	if title, ok := story.RestoreSession(s.controller, s.chats); ok {
		logger.Info("resumed last story", "title", title)
	} else {
		s.sh.Println("No story is open. Start one with \\new, or just write the first line.")
	}

	s.sh.Run()
}

// bannerLines is the greeting printed before the input loop starts.
func (s *Shell) bannerLines() []string {
	lines := []string{fmt.Sprintf("storyloom v%s - stories written together", version.GetVersion())}
	if version.IsPrerelease() {
		lines = append(lines, "Pre-release build. Expect rough edges.")
	}
	if !s.backend.IsConfigured() {
		lines = append(lines, fmt.Sprintf("No API key found for %s. Set STORYLOOM_API_KEY or run with --provider mock.", s.backend.ProviderName()))
	}
	return append(lines, "Type \\help for commands.")
}

func (s *Shell) processInput(c *ishell.Context) {
	if len(c.RawArgs) == 0 {
		return
	}
	line := strings.TrimSpace(strings.Join(c.RawArgs, " "))
	s.handleLine(c, line)
}

// handleLine routes one input line: backslash commands, suggestion
// picks, or story prose.
func (s *Shell) handleLine(con console, line string) {
	if line == "" {
		return
	}
	if strings.HasPrefix(line, `\`) {
		s.dispatchCommand(con, line)
		return
	}
	if text, ok := s.pickSuggestion(line); ok {
		s.submitTurn(con, text)
		return
	}
	s.submitTurn(con, line)
}

func (s *Shell) dispatchCommand(con console, line string) {
	parts := strings.SplitN(strings.TrimPrefix(line, `\`), " ", 2)
	name := strings.ToLower(parts[0])
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch name {
	case "new":
		s.cmdNew(con, arg)
	case "stories":
		s.cmdStories(con)
	case "open":
		s.cmdOpen(con, arg)
	case "again":
		s.cmdAgain(con)
	case "persona":
		s.cmdPersona(con, arg)
	case "genres":
		s.cmdGenres(con)
	case "export":
		s.cmdExport(con, arg)
	case "status":
		s.cmdStatus(con)
	case "help":
		con.Println(helpText)
	case "exit", "quit":
		s.cmdExit(con)
	default:
		con.Printf("Unknown command: \\%s\n", name)
		con.Println("Type \\help for available commands")
	}
}

// pickSuggestion maps a bare number onto the latest reply's
// suggestions.
func (s *Shell) pickSuggestion(line string) (string, bool) {
	n, err := strconv.Atoi(line)
	if err != nil {
		return "", false
	}
	suggestions := s.sink.Suggestions()
	if n < 1 || n > len(suggestions) {
		return "", false
	}
	return suggestions[n-1], true
}

// submitTurn continues the active story, or starts one when none is
// open so the very first line of a session just works.
func (s *Shell) submitTurn(con console, text string) {
	if s.controller.ActiveTitle() == "" {
		if _, err := s.controller.StartNewStory(context.Background(), text, ""); err != nil {
			s.reportError(con, err)
		}
		return
	}
	if _, err := s.controller.SubmitTurn(context.Background(), text); err != nil {
		s.reportError(con, err)
	}
}

// reportError prints controller validation failures. Backend failures
// are not printed here; the sink already rendered those.
func (s *Shell) reportError(con console, err error) {
	switch {
	case err == nil:
	case errors.Is(err, story.ErrBusy):
		con.Println("Still waiting on the current reply. Give it a moment.")
	case errors.Is(err, story.ErrEmptyInput):
		con.Println("Write something first.")
	case errors.Is(err, story.ErrNoActiveStory):
		con.Println("No story is open. Start one with \\new.")
	case errors.Is(err, story.ErrStaleResponse):
		// The reply belonged to a story that was switched away from.
	}
}

func (s *Shell) cmdNew(con console, arg string) {
	genre := ""
	prompt := arg
	if prompt == "" {
		con.Print("Genre (\\genres lists them, empty for Default): ")
		genre = strings.TrimSpace(con.ReadLine())
		con.Print("How does the story begin? ")
		prompt = strings.TrimSpace(con.ReadLine())
	}
	if prompt == "" {
		con.Println("A story needs an opening line.")
		return
	}
	if _, err := s.controller.StartNewStory(context.Background(), prompt, genre); err != nil {
		s.reportError(con, err)
	}
}

func (s *Shell) cmdStories(con console) {
	titles := s.chats.Titles()
	if len(titles) == 0 {
		con.Println("No stories yet. Start one with \\new.")
		return
	}
	active := s.controller.ActiveTitle()
	for i, title := range titles {
		marker := "  "
		count := len(s.chats.Load(title).Turns)
		if title == active {
			marker = "* "
			// The stored record lags behind the debounced save.
			count = len(s.controller.Turns())
		}
		con.Printf("%s%d. %s (%s)\n", marker, i+1, title, turnCount(count))
	}
}

func turnCount(n int) string {
	if n == 1 {
		return "1 turn"
	}
	return fmt.Sprintf("%d turns", n)
}

func (s *Shell) cmdOpen(con console, arg string) {
	if arg == "" {
		con.Println("Usage: \\open <number or title>")
		return
	}
	title := arg
	if n, err := strconv.Atoi(arg); err == nil {
		titles := s.chats.Titles()
		if n < 1 || n > len(titles) {
			con.Printf("No story numbered %d. \\stories lists them.\n", n)
			return
		}
		title = titles[n-1]
	} else if !s.chats.HasTitle(title) {
		con.Printf("No story called %q. \\stories lists them.\n", title)
		return
	}
	if err := s.controller.LoadStory(title); err != nil {
		s.reportError(con, err)
	}
}

func (s *Shell) cmdAgain(con console) {
	reply, err := s.controller.RegenerateLastTurn(context.Background())
	if err != nil {
		s.reportError(con, err)
		return
	}
	if reply == nil && err == nil {
		con.Println("Nothing to retell yet. Finish an exchange first.")
	}
}

func (s *Shell) cmdPersona(con console, arg string) {
	if s.controller.ActiveTitle() == "" {
		con.Println("No story is open. Start one with \\new.")
		return
	}
	if arg == "" {
		con.Println(s.controller.Instruction())
		return
	}
	if err := s.controller.UpdateInstruction(arg); err != nil {
		con.Printf("Persona update failed: %s\n", err)
		return
	}
	con.Println("Persona updated.")
}

func (s *Shell) cmdGenres(con console) {
	for _, preset := range story.Genres() {
		con.Printf("  %s\n", preset.Name)
	}
}

func (s *Shell) cmdExport(con console, arg string) {
	title := s.controller.ActiveTitle()
	if title == "" {
		con.Println("No story is open. Start one with \\new.")
		return
	}
	path := arg
	if path == "" {
		path = exportFileName(title)
	}
	if err := ExportMarkdown(path, title, s.controller.Instruction(), s.controller.Turns()); err != nil {
		con.Printf("Export failed: %s\n", err)
		return
	}
	con.Printf("Exported to %s\n", path)
}

func (s *Shell) cmdStatus(con console) {
	title := s.controller.ActiveTitle()
	if title == "" {
		con.Println("Story:    none open")
	} else {
		con.Printf("Story:    %s\n", title)
		con.Printf("Turns:    %d\n", len(s.controller.Turns()))
	}

	configured := "ready"
	if !s.backend.IsConfigured() {
		configured = "no API key"
	}
	con.Printf("Backend:  %s (%s)\n", s.backend.ProviderName(), configured)
	con.Printf("Autosave: %s\n", s.sink.SaveState().String())
	if s.controller.Awaiting() {
		con.Println("A reply is on its way.")
	}
}

func (s *Shell) cmdExit(con console) {
	s.controller.Flush()
	con.Println("Until next time.")
	con.Stop()
}
