package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"goweft/pkg/backend"
	"goweft/pkg/graph"
	"goweft/pkg/lang"
	"goweft/pkg/runtime"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: weft <command> [arguments]

commands:
  parse <file>   parse a program and print its statements
  check <file>   parse and graph-check a program
  graph <file>   print the dependency graph in execution order
  dot <file>     print the dependency graph in Graphviz DOT format
  info <file>    print program configuration and active contexts
  run [-w n] [-h n] [-fps n] <file>
                 run a program headless (cpu and audio backends)
  repl           interactive session
`)
}

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	if cmd == "repl" {
		if err := repl(); err != nil {
			log.Fatalf("weft: %v", err)
		}
		return
	}
	if cmd == "run" {
		if err := cmdRun(os.Args[2:]); err != nil {
			log.Fatalf("weft: %v", err)
		}
		return
	}

	if len(os.Args) < 3 {
		usage()
		os.Exit(2)
	}
	src, err := os.ReadFile(os.Args[2])
	if err != nil {
		log.Fatalf("weft: %v", err)
	}

	switch cmd {
	case "parse":
		err = cmdParse(string(src))
	case "check":
		err = cmdCheck(string(src))
	case "graph":
		err = cmdGraph(string(src))
	case "dot":
		err = cmdDot(string(src))
	case "info":
		err = cmdInfo(string(src))
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("weft: %v", err)
	}
}

func cmdParse(src string) error {
	prog, err := lang.Parse(src)
	if err != nil {
		return err
	}
	for _, stmt := range prog.Statements {
		fmt.Println(stmt)
	}
	for _, p := range prog.Pragmas {
		fmt.Printf("#%s %s\n", p.Type, p.Config)
	}
	return nil
}

func cmdCheck(src string) error {
	g, err := runtime.CheckProgram(src)
	if err != nil {
		return err
	}
	prog, _ := lang.Parse(src)
	names := graph.ActiveContexts(prog).Sorted()
	fmt.Printf("ok: %d nodes, contexts [%s]\n", g.Len(), strings.Join(names, ", "))
	return nil
}

func cmdGraph(src string) error {
	g, err := runtime.CheckProgram(src)
	if err != nil {
		return err
	}
	printGraph(os.Stdout, g)
	return nil
}

func printGraph(w io.Writer, g *graph.Graph) {
	for _, name := range g.ExecOrder() {
		node, _ := g.Node(name)
		deps := "-"
		if len(node.Deps) > 0 {
			deps = strings.Join(node.Deps, ", ")
		}
		ctxNames := node.Contexts.Sorted()
		fmt.Fprintf(w, "%s <%s> (%s) <- %s [%s]\n",
			name,
			strings.Join(node.Outputs, ", "),
			node.Kind,
			deps,
			strings.Join(ctxNames, ", "))
	}
}

func cmdDot(src string) error {
	g, err := runtime.CheckProgram(src)
	if err != nil {
		return err
	}
	return g.ExportDOT(os.Stdout)
}

func cmdInfo(src string) error {
	prog, err := lang.Parse(src)
	if err != nil {
		return err
	}
	g, err := graph.Build(prog)
	if err != nil {
		return err
	}
	env := runtime.NewEnv(640, 480)
	env.Apply(prog)

	fmt.Printf("resolution:  %dx%d\n", env.ResW, env.ResH)
	fmt.Printf("target fps:  %g\n", env.TargetFPS)
	fmt.Printf("loop:        %gs\n", env.Loop)
	fmt.Printf("autorun:     %v\n", env.Autorun)
	fmt.Printf("nodes:       %d\n", g.Len())

	ctxNames := graph.ActiveContexts(prog).Sorted()
	fmt.Printf("contexts:    [%s]\n", strings.Join(ctxNames, ", "))
	for _, p := range prog.Pragmas {
		fmt.Printf("pragma:      %s %s\n", p.Type, p.Config)
	}
	return nil
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	width := fs.Int("w", 640, "output width")
	height := fs.Int("h", 480, "output height")
	fps := fs.Float64("fps", 0, "override target fps")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	src, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	prog, err := lang.Parse(string(src))
	if err != nil {
		return err
	}

	env := runtime.NewEnv(*width, *height)
	if *fps > 0 {
		env.TargetFPS = *fps
	}
	coord := runtime.NewCoordinator(env, backend.NewCPU(), nil, backend.NewAudio())
	if err := coord.Compile(context.Background(), prog); err != nil {
		return err
	}
	if !coord.Running() {
		if err := coord.Start(); err != nil {
			return err
		}
	}
	defer coord.Cleanup()
	log.Printf("running at %gfps, interrupt to stop", env.TargetFPS)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-sig:
			return nil
		case <-ticker.C:
			log.Printf("frame %d (t=%.2fs)", env.AbsFrame, env.AbsTime())
		}
	}
}

// repl is a live session: statements accumulate into a buffer and a
// blank line compiles and hot-swaps the running program.
func repl() error {
	env := runtime.NewEnv(640, 480)
	coord := runtime.NewCoordinator(env, backend.NewCPU(), nil, backend.NewAudio())
	defer coord.Cleanup()

	rl := liner.NewLiner()
	defer rl.Close()
	rl.SetCtrlCAborts(true)

	fmt.Println("weft repl: blank line compiles, :help for commands")
	var buffer []string
	for {
		prompt := "weft> "
		if len(buffer) > 0 {
			prompt = "....> "
		}
		line, err := rl.Prompt(prompt)
		if err == io.EOF {
			fmt.Println()
			return nil
		}
		if err == liner.ErrPromptAborted {
			buffer = nil
			continue
		}
		if err != nil {
			return err
		}

		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, ":") {
			if quit := replCommand(trimmed, &buffer, coord); quit {
				return nil
			}
			continue
		}
		if trimmed != "" {
			rl.AppendHistory(line)
			buffer = append(buffer, line)
			continue
		}
		if len(buffer) == 0 {
			continue
		}

		src := strings.Join(buffer, "\n")
		prog, err := lang.Parse(src)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		if err := coord.Compile(context.Background(), prog); err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		if !coord.Running() {
			if err := coord.Start(); err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
		}
		fmt.Printf("ok: %d nodes running\n", coord.Graph().Len())
	}
}

func replCommand(cmd string, buffer *[]string, coord *runtime.Coordinator) (quit bool) {
	switch cmd {
	case ":quit", ":q":
		return true
	case ":clear":
		*buffer = nil
		fmt.Println("cleared")
	case ":stop":
		coord.Stop()
		fmt.Println("stopped")
	case ":graph":
		if g := coord.Graph(); g != nil {
			printGraph(os.Stdout, g)
		} else {
			fmt.Println("no program compiled")
		}
	case ":show":
		for _, line := range *buffer {
			fmt.Println(line)
		}
	case ":help":
		fmt.Println(":quit :clear :stop :graph :show :help")
	default:
		fmt.Printf("unknown command %s\n", cmd)
	}
	return false
}
