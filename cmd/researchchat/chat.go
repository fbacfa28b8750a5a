package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/smallnest/researchchat/conversation"
	"github.com/smallnest/researchchat/event"
	"github.com/smallnest/researchchat/testparams"
)

var (
	styleUser   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	styleAI     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleEvent  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleError  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleTitle  = lipgloss.NewStyle().Bold(true).Border(lipgloss.RoundedBorder()).Padding(0, 1)
	styleOption = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

const chatHelp = `Komutlar:
  /araştır <konu>   web araştırmasını zorla başlat
  /yükle <dosya>    PDF veya metin dosyası yükle
  /parametre <json> test parametrelerini JSON olarak gönder
  /istatistik       oturum istatistikleri
  /sıfırla          sohbeti sıfırla
  /çık              çıkış`

func newChatCommand(root *rootOptions) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.registry.Get(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			r := &repl{registry: a.registry, session: sess, in: os.Stdin, out: os.Stdout}
			return r.run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "resume a stored session")
	return cmd
}

// repl is the line-mode chat loop.
type repl struct {
	registry *conversation.Registry
	session  *conversation.Session
	in       io.Reader
	out      io.Writer
}

func (r *repl) println(style lipgloss.Style, s string) {
	fmt.Fprintln(r.out, style.Render(s))
}

// Notify prints progress events as they arrive.
func (r *repl) Notify(e event.Event) {
	style := styleEvent
	if e.Type == event.Error {
		style = styleError
	}
	prefix := ""
	if e.AgentName != "" {
		prefix = "[" + e.AgentName + "] "
	}
	r.println(style, prefix+e.Message)
}

func (r *repl) run(ctx context.Context) error {
	r.println(styleTitle, "Araştırma Asistanı · oturum "+r.session.ID())
	r.println(styleEvent, chatHelp)

	sc := bufio.NewScanner(r.in)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		fmt.Fprint(r.out, styleUser.Render("> "))
		if !sc.Scan() {
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if quit := r.handle(ctx, line); quit {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// handle runs one input line and reports whether the loop should stop.
func (r *repl) handle(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/çık", "/exit", "/quit":
		return true
	case "/yardım", "/help":
		r.println(styleEvent, chatHelp)
	case "/sıfırla", "/reset":
		if err := r.session.Reset(ctx); err != nil {
			r.println(styleError, err.Error())
			return false
		}
		r.println(styleEvent, "Sohbet sıfırlandı.")
	case "/istatistik", "/stats":
		stats, err := r.session.Stats(ctx)
		if err != nil {
			r.println(styleError, err.Error())
			return false
		}
		b, _ := json.MarshalIndent(stats, "", "  ")
		r.println(styleEvent, string(b))
	case "/yükle", "/upload":
		r.upload(ctx, arg)
	case "/parametre", "/params":
		var payload map[string]any
		if err := json.Unmarshal([]byte(arg), &payload); err != nil {
			r.println(styleError, "Geçersiz JSON: "+err.Error())
			return false
		}
		r.show(r.session.HandleTestParameters(ctx, payload, r))
	case "/araştır", "/research":
		r.show(r.session.ProcessMessage(ctx, conversation.Request{Message: arg, ForceResearch: true}, r))
	default:
		r.show(r.session.ProcessMessage(ctx, conversation.Request{Message: line}, r))
	}
	return false
}

func (r *repl) show(reply *conversation.Reply, err error) {
	if err != nil {
		r.println(styleError, err.Error())
		return
	}
	if reply.Content != "" {
		style := styleAI
		if reply.Failed {
			style = styleError
		}
		r.println(style, reply.Content)
	}
	if reply.Prompt != nil {
		r.prompt(reply.Prompt)
	}
}

func (r *repl) prompt(p *testparams.Prompt) {
	for _, o := range p.Options {
		line := "  • " + o.ID + " · " + o.Label
		if o.Description != "" {
			line += " (" + o.Description + ")"
		}
		r.println(styleOption, line)
	}
	r.println(styleEvent, "Cevabınızı yazın ya da /parametre ile JSON gönderin.")
}

func (r *repl) upload(ctx context.Context, path string) {
	if path == "" {
		r.println(styleError, "Dosya yolu gerekli: /yükle <dosya>")
		return
	}
	docs, err := r.registry.Documents(r.session.ID())
	if err != nil {
		r.println(styleError, err.Error())
		return
	}
	doc, added, err := ingestFile(ctx, docs, path)
	if err != nil {
		r.println(styleError, err.Error())
		return
	}
	name := filepath.Base(path)
	if !added {
		r.println(styleEvent, fmt.Sprintf("ℹ️ %s zaten yüklenmiş", name))
		return
	}
	r.println(styleAI, fmt.Sprintf("✅ %s yüklendi (%d metin parçası)", name, doc.ChunkCount))
}
