package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/exhibit-client/pkg/client"
	"github.com/Sternrassler/exhibit-client/pkg/exhibit"
	"github.com/Sternrassler/exhibit-client/pkg/imagecache"
	"github.com/Sternrassler/exhibit-client/pkg/store"
)

var (
	errEmptyQuery  = errors.New("empty query: type something to search for")
	errQueryFailed = errors.New("query failed")
)

const (
	eventLoaded = "loaded"
	eventFailed = "failed"
	eventEmpty  = "empty"
)

// catalogService is what the browser needs from the catalog client.
type catalogService interface {
	exhibit.Catalog
	imagecache.Fetcher
}

// browser is the interactive exhibit viewer behind the browse command.
type browser struct {
	saved   *store.Store
	console *console
	surface *terminalSurface
	orch    *exhibit.Orchestrator
	images  *imagecache.Coordinator
	events  chan string

	waitTimeout time.Duration
}

func newBrowser(catalog catalogService, saved *store.Store, cfg appConfig, out io.Writer) (*browser, error) {
	b := &browser{
		saved:       saved,
		console:     &console{out: out},
		events:      make(chan string, 8),
		waitTimeout: 30 * time.Second,
	}
	b.surface = &terminalSurface{console: b.console}

	images, err := imagecache.New(catalog, imagecache.Config{
		CacheEntries:     cfg.ImageCacheEntries,
		UnavailableImage: unavailableImage,
	})
	if err != nil {
		return nil, fmt.Errorf("create image coordinator: %w", err)
	}
	b.images = images

	orch, err := exhibit.New(catalog, exhibit.Config{
		MaxGroupSize:     cfg.MaxGroupSize,
		OnGroupReady:     b.groupReady,
		OnQueryFailed:    b.queryFailed,
		OnExhibitEmpty:   b.exhibitEmpty,
		OnCurrentChanged: b.show,
	})
	if err != nil {
		images.Close()
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}
	b.orch = orch

	return b, nil
}

// Close stops the orchestrator and the image coordinator.
func (b *browser) Close() {
	b.orch.Close()
	b.images.Close()
}

func (b *browser) signal(event string) {
	select {
	case b.events <- event:
	default:
	}
}

func (b *browser) groupReady(group int, items []client.Artifact) {
	b.console.Printf("Loaded group %d (%d items)\n", group, len(items))
	b.signal(eventLoaded)
}

func (b *browser) queryFailed(query string, err error) {
	b.console.Printf("Search for %q failed: %s\n", query, client.UserMessage(err))
	b.signal(eventFailed)
}

func (b *browser) exhibitEmpty(query string) {
	b.console.Printf("Nothing on view matches %q.\n", query)
	b.signal(eventEmpty)
}

// show prints the current item and assigns its image to the surface.
func (b *browser) show(index int, item client.Artifact) {
	mark := ""
	if saved, err := b.saved.Contains(context.Background(), item); err == nil && saved {
		mark = " [saved]"
	}
	b.console.Printf("[%d] %s%s\n", index+1, item.Title, mark)
	b.images.Assign(b.surface, item.ImageSource(), placeholderImage)
}

// run starts query and executes commands read from in until q or EOF.
func (b *browser) run(ctx context.Context, query string, in io.Reader) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return errEmptyQuery
	}

	b.orch.StartQuery(query)

	select {
	case event := <-b.events:
		switch event {
		case eventFailed:
			return errQueryFailed
		case eventEmpty:
			return nil
		}
	case <-time.After(b.waitTimeout):
		return fmt.Errorf("no results for %q after %s", query, b.waitTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	b.help()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "n", "next":
			b.next(ctx)
		case "p", "prev":
			if !b.orch.Sequencer().Previous() {
				b.console.Printf("Already at the first item.\n")
			}
		case "s", "save":
			if err := b.toggleSaved(ctx); err != nil {
				return err
			}
		case "o", "open":
			b.open()
		case "g", "goto":
			b.jump(fields[1:])
		case "h", "help", "?":
			b.help()
		case "q", "quit":
			return nil
		default:
			b.console.Printf("Unknown command %q. Type h for help.\n", fields[0])
		}
	}
	return scanner.Err()
}

func (b *browser) help() {
	b.console.Printf("Commands: n next, p previous, s save/unsave, o open details, g <n> go to item, q quit\n")
}

// next moves forward, waiting for the next group when at the end of the
// loaded items.
func (b *browser) next(ctx context.Context) {
	seq := b.orch.Sequencer()
	if seq.Next() {
		return
	}
	switch b.orch.State().State {
	case exhibit.AllGroupsLoaded:
		b.console.Printf("End of exhibit.\n")
		return
	case exhibit.Failed, exhibit.Idle:
		return
	}

	b.console.Printf("Loading more...\n")

	timeout := time.NewTimer(b.waitTimeout)
	defer timeout.Stop()

	// Each group landing signals an event. Events left over from earlier
	// preloads only cause an extra check.
	for {
		select {
		case <-ctx.Done():
			return
		case <-timeout.C:
			b.console.Printf("Still loading, try again.\n")
			return
		case <-b.events:
		}

		if seq.Next() {
			return
		}
		switch b.orch.State().State {
		case exhibit.AllGroupsLoaded:
			b.console.Printf("End of exhibit.\n")
			return
		case exhibit.Failed, exhibit.Idle:
			return
		}
	}
}

func (b *browser) toggleSaved(ctx context.Context) error {
	item, _, ok := b.orch.Sequencer().Current()
	if !ok {
		b.console.Printf("Nothing to save.\n")
		return nil
	}

	saved, err := b.saved.Contains(ctx, item)
	if err != nil {
		return fmt.Errorf("check saved state: %w", err)
	}

	if saved {
		removed, err := b.saved.Remove(ctx, item)
		if err != nil {
			return fmt.Errorf("remove saved item: %w", err)
		}
		if !removed {
			b.console.Printf("%q was not saved.\n", item.Title)
			return nil
		}
		b.console.Printf("Removed %q from saved items.\n", item.Title)
		return nil
	}

	stored, err := b.saved.Save(ctx, item)
	if err != nil {
		return fmt.Errorf("save item: %w", err)
	}
	if !stored {
		b.console.Printf("%q is already saved.\n", item.Title)
		return nil
	}
	b.console.Printf("Saved %q.\n", item.Title)
	return nil
}

func (b *browser) open() {
	item, _, ok := b.orch.Sequencer().Current()
	if !ok || item.ObjectURL == "" {
		b.console.Printf("No details page.\n")
		return
	}
	b.console.Printf("%s\n", item.ObjectURL)
}

func (b *browser) jump(args []string) {
	if len(args) != 1 {
		b.console.Printf("Usage: g <n>\n")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		b.console.Printf("Not an item number: %q\n", args[0])
		return
	}

	seq := b.orch.Sequencer()
	if seq.SetIndex(n - 1) {
		return
	}
	if seq.Index() == n-1 {
		b.console.Printf("Already at item %d.\n", n)
		return
	}
	b.console.Printf("Item %d is not loaded (%d items).\n", n, len(b.orch.Items()))
}
