package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/harun/colloquy/pkg/blueprint"
	"github.com/harun/colloquy/pkg/message"
	"github.com/harun/colloquy/pkg/model"
	"github.com/harun/colloquy/pkg/prompt"
	"github.com/harun/colloquy/pkg/session"
	"github.com/harun/colloquy/pkg/toolkit"
	"github.com/harun/colloquy/pkg/transcript"
	"github.com/spf13/cobra"
)

var chatOpts struct {
	conversation  string
	system        string
	blueprints    []string
	objects       []string
	schemaFile    string
	noTools       bool
	showReasoning bool
}

var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Send a prompt and continue the conversation",
	Long: `Send a prompt to the model, run any tools it requests and append the
new messages to the conversation transcript. Without a prompt argument,
every line read from stdin is sent as its own prompt.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	f := chatCmd.Flags()
	f.StringVarP(&chatOpts.conversation, "conversation", "c", "default", "transcript key to continue")
	f.StringVar(&chatOpts.system, "system", "", "system prompt override")
	f.StringSliceVarP(&chatOpts.blueprints, "blueprint", "b", nil, "blueprint key to activate (repeatable)")
	f.StringSliceVar(&chatOpts.objects, "object", nil, "context object as id:typename (repeatable)")
	f.StringVar(&chatOpts.schemaFile, "schema", "", "JSON schema file; the answer is returned as validated JSON")
	f.BoolVar(&chatOpts.noTools, "no-tools", false, "run without the artifact tools")
	f.BoolVar(&chatOpts.showReasoning, "show-reasoning", false, "print model reasoning")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cfg.Validate(); err != nil {
		return err
	}
	if err := a.startTelemetry(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := newChat(a, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	if len(args) == 1 {
		return c.send(ctx, args[0])
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := c.send(ctx, line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// chat carries one conversation across prompts.
type chat struct {
	app         *app
	out         io.Writer
	sess        *session.Session
	transcripts *transcript.Store
	params      session.RunParams
	schema      map[string]interface{}
}

func newChat(a *app, out io.Writer) (*chat, error) {
	st, err := a.openStore()
	if err != nil {
		return nil, err
	}
	transcripts, err := a.openTranscripts()
	if err != nil {
		return nil, err
	}
	lib, err := a.openLibrary()
	if err != nil {
		return nil, err
	}

	svc, err := model.NewService(model.Config{
		Provider: a.cfg.Model.Provider,
		APIKey:   a.cfg.Model.APIKey,
		BaseURL:  a.cfg.Model.BaseURL,
	})
	if err != nil {
		return nil, err
	}

	var sources blueprint.Databases
	if lib != nil {
		sources = append(sources, lib)
	}
	sources = append(sources, st)

	sess, err := session.New(session.Config{
		ID:            chatOpts.conversation,
		Model:         svc,
		ModelName:     a.cfg.Model.Name,
		MaxTokens:     a.cfg.Model.MaxTokens,
		Temperature:   a.cfg.Model.Temperature,
		SystemPrompt:  a.cfg.Session.SystemPrompt,
		MaxIterations: a.cfg.Session.MaxIterations,
		Formatter: prompt.NewFormatter(prompt.FormatterConfig{
			Loader:   blueprint.NewLoader(sources),
			Resolver: st,
			Logger:   a.logger(),
		}),
		Executor: toolkit.NewExecutor(toolkit.ExecutorConfig{
			Timeout:        a.cfg.Session.ToolTimeout,
			MaxOutputBytes: a.cfg.Session.MaxToolOutput,
			Policy:         &toolkit.Policy{Allow: a.cfg.Tools.Allow, Deny: a.cfg.Tools.Deny},
			Session:        chatOpts.conversation,
			Logger:         a.logger(),
		}),
		Logger: a.logger(),
	})
	if err != nil {
		return nil, err
	}

	c := &chat{app: a, out: out, sess: sess, transcripts: transcripts}
	c.params.System = chatOpts.system

	if len(chatOpts.blueprints) > 0 {
		if lib == nil {
			return nil, fmt.Errorf("no blueprint directory at %s", a.cfg.Blueprints.Dir)
		}
		c.params.Blueprints, err = lib.Lookup(chatOpts.blueprints...)
		if err != nil {
			return nil, err
		}
	}

	c.params.Objects, err = parseObjects(chatOpts.objects)
	if err != nil {
		return nil, err
	}

	if !chatOpts.noTools {
		c.params.Toolkit, err = st.Toolkit()
		if err != nil {
			return nil, err
		}
	}

	if chatOpts.schemaFile != "" {
		data, err := os.ReadFile(chatOpts.schemaFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema: %w", err)
		}
		if err := json.Unmarshal(data, &c.schema); err != nil {
			return nil, fmt.Errorf("invalid schema: %w", err)
		}
	}

	c.params.Observer = &session.Observer{OnBlock: c.printBlock}
	return c, nil
}

// send runs one prompt and appends what it produced to the transcript. Partial
// output of a failed run is kept so the conversation stays continuable.
func (c *chat) send(ctx context.Context, text string) error {
	history, err := c.transcripts.Load(ctx, chatOpts.conversation)
	if err != nil {
		return err
	}

	params := c.params
	params.Prompt = text
	params.History = history

	var (
		pending []message.Message
		result  json.RawMessage
		runErr  error
	)
	if c.schema != nil {
		result, pending, runErr = c.sess.RunStructured(ctx, params, c.schema)
	} else {
		pending, runErr = c.sess.Run(ctx, params)
	}

	var failed *session.RunError
	if runErr != nil && errors.As(runErr, &failed) {
		pending = failed.Pending
	}
	if err := c.transcripts.Append(ctx, chatOpts.conversation, pending...); err != nil {
		return err
	}

	if runErr != nil {
		var modelErr *session.ModelError
		if errors.As(runErr, &modelErr) && modelErr.Overloaded() {
			return fmt.Errorf("%w (the provider is overloaded, retry later)", runErr)
		}
		return runErr
	}
	if result != nil {
		fmt.Fprintln(c.out, string(result))
	}
	return nil
}

func (c *chat) printBlock(b message.Block) {
	if message.IsPending(b) {
		return
	}
	switch v := b.(type) {
	case message.TextBlock:
		if strings.TrimSpace(v.Text) != "" {
			fmt.Fprintln(c.out, v.Text)
		}
	case message.ReasoningBlock:
		if chatOpts.showReasoning {
			fmt.Fprintf(c.out, "[reasoning] %s\n", v.Text)
		}
	case message.StatusBlock:
		fmt.Fprintf(c.out, "[status] %s\n", v.Text)
	case message.SuggestionBlock:
		fmt.Fprintf(c.out, "[suggestion] %s\n", v.Text)
	case message.ProposalBlock:
		fmt.Fprintf(c.out, "[proposal] %s\n", v.Text)
	case message.SelectBlock:
		for i, opt := range v.Options {
			fmt.Fprintf(c.out, "  %d) %s\n", i+1, opt)
		}
	case message.ToolUseBlock:
		fmt.Fprintf(c.out, "-> %s %s\n", v.Name, string(v.Input))
	}
}

func parseObjects(specs []string) ([]prompt.ContextObject, error) {
	var objects []prompt.ContextObject
	for _, spec := range specs {
		id, typename, ok := strings.Cut(spec, ":")
		if !ok || id == "" || typename == "" {
			return nil, fmt.Errorf("invalid object %q (want id:typename)", spec)
		}
		objects = append(objects, prompt.ContextObject{ID: id, Typename: typename})
	}
	return objects, nil
}
