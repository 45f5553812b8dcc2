package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/net/html"

	"outline_assistant/applier"
	"outline_assistant/config"
	"outline_assistant/docsapi"
	"outline_assistant/hostview"
	"outline_assistant/messaging"
	"outline_assistant/metrics"
	"outline_assistant/observer"
	"outline_assistant/sidebar"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a document and show live writing metrics",
	Long: "Follow a saved editor page (--page, reloaded when the file changes) or a live document " +
		"through the Docs API (--doc). With --generate an outline is produced once text arrives and " +
		"inserted into the document.",
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().String("page", "", "path to a saved editor page (HTML)")
	watchCmd.Flags().String("doc", "", "document URL or id to poll through the Docs API")
	watchCmd.Flags().Bool("generate", false, "generate and insert an outline, then exit")
	watchCmd.Flags().String("out", "", "with --page --generate, write the updated page here instead of stdout")
	watchCmd.MarkFlagsMutuallyExclusive("page", "doc")
	watchCmd.MarkFlagsOneRequired("page", "doc")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	gen, err := buildGenerator(cfg)
	if err != nil {
		return err
	}

	page, _ := cmd.Flags().GetString("page")
	docRef, _ := cmd.Flags().GetString("doc")

	hostCfg := sidebar.HostConfig{Logger: log.Default(), Verbose: verbose}
	var adapter *hostview.Adapter
	if page != "" {
		doc, err := loadPage(page)
		if err != nil {
			return err
		}
		adapter, err = hostview.NewAdapter(doc, hostview.DefaultSelectors(), log.Default(), verbose)
		if err != nil {
			return err
		}
		watcher, strategy, err := observer.Select(adapter, observer.Options{
			Strategy:     observer.Strategy(cfg.Observer.Strategy),
			Debounce:     cfg.Observer.Debounce(),
			PollInterval: cfg.Observer.PollInterval(),
			Logger:       log.Default(),
			Verbose:      verbose,
		})
		if err != nil {
			return err
		}
		pterm.Info.Printfln("Watching %s (%s)", page, strategy)
		go reloadPage(ctx, page, doc, cfg.Observer.PollInterval())

		hostCfg.Adapter = adapter
		hostCfg.Watcher = watcher
		hostCfg.Applier, err = applier.New(&applier.DOMStrategy{Adapter: adapter}, log.Default(), verbose)
		if err != nil {
			return err
		}
	} else {
		docID, err := docsapi.DocumentID(docRef)
		if err != nil {
			return err
		}
		tokens, _, err := buildTokenManager(cfg)
		if err != nil {
			return err
		}
		if _, err := tokens.Token(ctx, true); err != nil {
			pterm.Error.Println(applier.FriendlyMessage(err))
			return err
		}
		client := &docsapi.Client{Endpoint: cfg.Google.DocsEndpoint}
		pterm.Info.Printfln("Polling document %s every %s", docID, cfg.Observer.PollInterval())

		hostCfg.DocID = docID
		hostCfg.Watcher = &observer.PollWatcher{
			Source:   docsapi.PollSource{Client: client, Tokens: tokens, DocID: docID},
			Interval: cfg.Observer.PollInterval(),
			Logger:   log.Default(),
			Verbose:  verbose,
		}
		hostCfg.Applier, err = applier.New(&applier.DocsStrategy{Client: client, Tokens: tokens}, log.Default(), verbose)
		if err != nil {
			return err
		}
	}

	sideConn, hostConn := messaging.Pipe()
	hostEP := messaging.NewEndpoint(hostConn, log.Default(), verbose)
	sideEP := messaging.NewEndpoint(sideConn, log.Default(), verbose)
	defer hostEP.Close()

	host, err := sidebar.NewHost(hostEP, hostCfg)
	if err != nil {
		return err
	}
	firstText := make(chan struct{})
	var once sync.Once
	printer := &metricsPrinter{}
	ctrl, err := sidebar.NewController(sideEP, gen, nil, sidebar.ControllerConfig{
		DocID: hostCfg.DocID,
		OnChange: func(st sidebar.State) {
			if printer.show(st) {
				once.Do(func() { close(firstText) })
			}
		},
		Logger:  log.Default(),
		Verbose: verbose,
	})
	if err != nil {
		return err
	}

	go func() { _ = hostEP.Run(ctx) }()
	go func() { _ = sideEP.Run(ctx) }()
	if err := host.Start(ctx); err != nil {
		return err
	}
	defer host.Stop()
	if err := ctrl.Start(ctx); err != nil {
		return err
	}

	generate, _ := cmd.Flags().GetBool("generate")
	if !generate {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if ctrl.Session().Snapshot().Text != "" && ctrl.Stuck() {
					pterm.Warning.Println("Stuck? Try: " + lo.Sample(metrics.WritingPrompts()))
				}
			}
		}
	}

	select {
	case <-firstText:
	case <-ctx.Done():
		return ctx.Err()
	}
	spinner, _ := pterm.DefaultSpinner.Start("Generating outline...")
	if err := ctrl.GenerateAndApply(ctx); err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success("Outline inserted")
	_ = ctrl.Close(ctx)

	if adapter == nil {
		return nil
	}
	rendered, err := adapter.Document().Render()
	if err != nil {
		return err
	}
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		return os.WriteFile(out, []byte(rendered), 0o644)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

// metricsPrinter prints a line each time the observed text changes.
type metricsPrinter struct {
	mu   sync.Mutex
	last string
	err  string
}

// show reports whether st carries text.
func (p *metricsPrinter) show(st sidebar.State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st.LastError != "" && st.LastError != p.err {
		pterm.Error.Println(st.LastError)
	}
	p.err = st.LastError
	if st.Text == p.last {
		return st.Text != ""
	}
	p.last = st.Text
	m := st.Metrics
	pterm.Info.Printfln("%d words, %s, grade %d, %s style",
		st.Features.WordCount, st.Features.ReadingTime, metrics.DisplayGrade(m.GradeLevel), m.WritingStyle)
	return st.Text != ""
}

func loadPage(path string) (*hostview.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return hostview.Parse(f)
}

// reloadPage replaces the document tree whenever the file on disk changes, so
// edits made in another program reach the watcher as mutations.
func reloadPage(ctx context.Context, path string, doc *hostview.Document, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	var modTime time.Time
	if st, err := os.Stat(path); err == nil {
		modTime = st.ModTime()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		st, err := os.Stat(path)
		if err != nil || !st.ModTime().After(modTime) {
			continue
		}
		modTime = st.ModTime()
		fresh, err := loadPage(path)
		if err != nil {
			log.Printf("[WARN] [watch] reload %s: %v", path, err)
			continue
		}
		err = doc.Mutate(hostview.ChildList, func(root *html.Node) error {
			var children []*html.Node
			fresh.View(func(src *html.Node) {
				for c := src.FirstChild; c != nil; c = c.NextSibling {
					children = append(children, c)
				}
			})
			if len(children) == 0 {
				return errors.New("empty page")
			}
			for root.FirstChild != nil {
				root.RemoveChild(root.FirstChild)
			}
			for _, c := range children {
				c.Parent.RemoveChild(c)
				root.AppendChild(c)
			}
			return nil
		})
		if err != nil {
			log.Printf("[WARN] [watch] reload %s: %v", path, err)
		}
	}
}
