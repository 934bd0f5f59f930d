package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	openai "github.com/sashabaranov/go-openai"

	"github.com/toolbridge/toolbridge/pkg/bridge"
	"github.com/toolbridge/toolbridge/pkg/catalog"
	"github.com/toolbridge/toolbridge/pkg/chat"
	"github.com/toolbridge/toolbridge/pkg/config"
	"github.com/toolbridge/toolbridge/pkg/lifecycle"
	"github.com/toolbridge/toolbridge/pkg/models"
	"github.com/toolbridge/toolbridge/pkg/store"
)

const helpText = `Commands:
  add <name> <spec-url> <port>        create a profile
  auth-header <profile> <name> <val>  set the auth header credential
  auth-query <profile> <name> <val>   set the auth query credential
  llm-key <profile> <key>             set a profile-specific LLM credential
  load <profile>                      fetch the spec and (re)build the catalog
  ops <profile>                       list cataloged operations
  enable <profile> <method> <path>    enable an operation
  disable <profile> <method> <path>   disable an operation
  start <profile>                     start (or restart) the tool server
  stop <profile>                      stop the tool server
  status <profile>                    show liveness and recent logs
  profiles                            list profiles
  save <profile>                      persist the profile (requires DATABASE_URL)
  delete <profile>                    remove a profile
  use <profile>                       select the chat target
  <anything else>                     chat with the selected profile's tools
  exit                                quit`

type app struct {
	cfg          *config.Config
	registry     *lifecycle.Registry
	manager      *lifecycle.Manager
	profileStore store.ProfileStore
	orchestrator *chat.Orchestrator
	describer    catalog.Describer

	chatTarget   string
	conversation chat.Conversation
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	cfg.LogConfiguration()

	a := &app{
		cfg:      cfg,
		registry: lifecycle.NewRegistry(),
	}
	a.manager = lifecycle.NewManager(a.registry)

	if cfg.DatabaseURL != "" {
		db, err := store.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("profile store unavailable: %v", err)
		}
		defer db.Close()
		if err := store.RunMigrations(db); err != nil {
			log.Fatalf("profile store migration failed: %v", err)
		}
		a.profileStore = store.NewPostgresStore(db)
		a.loadStoredProfiles()
	}

	if cfg.OpenAIKey != "" {
		client := openai.NewClient(cfg.OpenAIKey)
		a.orchestrator = chat.New(client, cfg.ChatModel).WithMaxRounds(cfg.MaxRounds)
		if cfg.Enrich {
			a.describer = catalog.NewOpenAIDescriber(cfg.OpenAIKey, cfg.ChatModel)
		}
	}

	rl, err := readline.New("toolbridge> ")
	if err != nil {
		log.Fatalf("failed to initialize prompt: %v", err)
	}
	defer rl.Close()

	fmt.Println(helpText)
	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or readline.ErrInterrupt
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}
		a.dispatch(line)
	}
}

func (a *app) loadStoredProfiles() {
	profiles, err := a.profileStore.List()
	if err != nil {
		log.Printf("failed to load stored profiles: %v", err)
		return
	}
	for _, p := range profiles {
		a.registry.Put(p)
	}
	log.Printf("Loaded %d profiles from store", len(profiles))
}

func (a *app) dispatch(line string) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	ctx := context.Background()
	switch cmd {
	case "help":
		fmt.Println(helpText)
	case "add":
		a.cmdAdd(args)
	case "auth-header", "auth-query":
		a.cmdAuth(cmd, args)
	case "llm-key":
		a.cmdLLMKey(args)
	case "load":
		a.cmdLoad(ctx, args)
	case "ops":
		a.cmdOps(args)
	case "enable", "disable":
		a.cmdToggle(cmd, args)
	case "start":
		a.cmdStart(ctx, args)
	case "stop":
		a.cmdStop(ctx, args)
	case "status":
		a.cmdStatus(args)
	case "profiles":
		a.cmdProfiles()
	case "save":
		a.cmdSave(args)
	case "delete":
		a.cmdDelete(ctx, args)
	case "use":
		a.cmdUse(args)
	default:
		a.cmdChat(ctx, line)
	}
}

func (a *app) cmdAdd(args []string) {
	if len(args) != 3 {
		fmt.Println("usage: add <name> <spec-url> <port>")
		return
	}
	port, err := strconv.Atoi(args[2])
	if err != nil {
		fmt.Printf("invalid port %q\n", args[2])
		return
	}
	profile := models.NewAPIProfile(args[0], args[1], port)
	if err := profile.Validate(); err != nil {
		fmt.Println(err)
		return
	}
	a.registry.Put(profile)
	fmt.Printf("profile %s added\n", profile.Name)
}

func (a *app) cmdAuth(kind string, args []string) {
	if len(args) != 3 {
		fmt.Printf("usage: %s <profile> <name> <value>\n", kind)
		return
	}
	err := a.registry.WithLock(args[0], func(p *models.APIProfile) error {
		if kind == "auth-header" {
			p.AuthHeaderName, p.AuthHeaderValue = args[1], args[2]
		} else {
			p.AuthQueryName, p.AuthQueryValue = args[1], args[2]
		}
		return nil
	})
	if err != nil {
		fmt.Println(err)
	}
}

func (a *app) cmdLLMKey(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: llm-key <profile> <key>")
		return
	}
	err := a.registry.WithLock(args[0], func(p *models.APIProfile) error {
		p.LLMKey = args[1]
		return nil
	})
	if err != nil {
		fmt.Println(err)
	}
}

func (a *app) cmdLoad(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: load <profile>")
		return
	}
	if err := a.manager.Refresh(ctx, args[0]); err != nil {
		fmt.Println(err)
		return
	}
	profile, _ := a.registry.Get(args[0])
	if d := a.describerFor(profile); d != nil {
		catalog.Enrich(ctx, profile, d)
	}
	fmt.Printf("cataloged %d operations\n", len(profile.Operations))
}

// describerFor picks the enrichment describer: a profile-specific one when the
// profile carries its own LLM credential, else the process-wide fallback.
func (a *app) describerFor(p *models.APIProfile) catalog.Describer {
	if !a.cfg.Enrich {
		return nil
	}
	if p != nil && p.LLMKey != "" {
		return catalog.NewOpenAIDescriber(p.LLMKey, a.cfg.ChatModel)
	}
	return a.describer
}

func (a *app) cmdOps(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: ops <profile>")
		return
	}
	profile, ok := a.registry.Get(args[0])
	if !ok {
		fmt.Printf("unknown profile %q\n", args[0])
		return
	}
	for key, desc := range profile.Operations {
		mark := " "
		if profile.Enabled[key] {
			mark = "x"
		}
		fmt.Printf("  [%s] %-30s %s\n", mark, key, desc.Summary)
	}
}

func (a *app) cmdToggle(cmd string, args []string) {
	if len(args) != 3 {
		fmt.Printf("usage: %s <profile> <method> <path>\n", cmd)
		return
	}
	key := models.OperationKey(args[1], args[2])
	err := a.registry.WithLock(args[0], func(p *models.APIProfile) error {
		if _, known := p.Operations[key]; !known {
			return fmt.Errorf("unknown operation %q (run load first)", key)
		}
		p.Enabled[key] = cmd == "enable"
		return nil
	})
	if err != nil {
		fmt.Println(err)
	}
}

func (a *app) cmdStart(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: start <profile>")
		return
	}
	handle, err := a.manager.Start(ctx, args[0])
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("tool server launching on :%d (check status for liveness)\n", handle.Port)
}

func (a *app) cmdStop(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: stop <profile>")
		return
	}
	if err := a.manager.Stop(ctx, args[0]); err != nil {
		fmt.Println(err)
	}
}

func (a *app) cmdStatus(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: status <profile>")
		return
	}
	name := args[0]
	if a.manager.IsRunning(name) {
		handle, _ := a.manager.Handle(name)
		fmt.Printf("✅ running on :%d\n", handle.Port)
	} else {
		fmt.Println("⏹ stopped")
	}
	for _, line := range a.registry.Logs(name).Last(20) {
		fmt.Println("  " + line)
	}
}

func (a *app) cmdProfiles() {
	for _, p := range a.registry.List() {
		badge := "⏹"
		if a.manager.IsRunning(p.Name) {
			badge = "✅"
		}
		project := p.Project
		if project == "" {
			project = "default"
		}
		fmt.Printf("%s %s/%s — %s (:%d)\n", badge, project, p.Name, p.SpecURL, p.Port)
	}
}

func (a *app) cmdSave(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: save <profile>")
		return
	}
	if a.profileStore == nil {
		fmt.Println("no profile store configured (set DATABASE_URL)")
		return
	}
	profile, ok := a.registry.Get(args[0])
	if !ok {
		fmt.Printf("unknown profile %q\n", args[0])
		return
	}
	if err := a.profileStore.Put(profile); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("profile %s saved\n", profile.Name)
}

func (a *app) cmdDelete(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: delete <profile>")
		return
	}
	name := args[0]
	if a.manager.IsRunning(name) {
		if err := a.manager.Stop(ctx, name); err != nil {
			fmt.Println(err)
		}
	}
	a.registry.Remove(name)
	if a.profileStore != nil {
		if err := a.profileStore.Delete(name); err != nil {
			fmt.Println(err)
		}
	}
	if a.chatTarget == name {
		a.chatTarget = ""
	}
	fmt.Printf("profile %s deleted\n", name)
}

func (a *app) cmdUse(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: use <profile>")
		return
	}
	if !a.manager.IsRunning(args[0]) {
		fmt.Printf("profile %q has no running tool server\n", args[0])
		return
	}
	a.chatTarget = args[0]
	a.conversation = chat.Conversation{}
	fmt.Printf("chatting against %s\n", args[0])
}

func (a *app) cmdChat(ctx context.Context, text string) {
	if a.chatTarget == "" || !a.manager.IsRunning(a.chatTarget) {
		fmt.Println("no running tool server selected (use <profile>)")
		return
	}

	orch := a.orchestrator
	if profile, ok := a.registry.Get(a.chatTarget); ok && profile.LLMKey != "" {
		orch = chat.New(openai.NewClient(profile.LLMKey), a.cfg.ChatModel).WithMaxRounds(a.cfg.MaxRounds)
	}
	if orch == nil {
		fmt.Println("chat unavailable: set OPENAI_API_KEY or a profile llm-key")
		return
	}

	handle, _ := a.manager.Handle(a.chatTarget)
	answer, err := orch.HandleUserMessage(ctx, &a.conversation, bridge.NewClient(handle.Port), text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chat failed: %v\n", err)
		return
	}
	fmt.Println(answer)
}
