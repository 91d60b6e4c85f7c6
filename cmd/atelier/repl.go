package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"atelier/internal/edit"
	"atelier/internal/studio"
	"atelier/internal/types"
)

const replHelp = `Type a message to talk to the designer, or a command:
  /upload <path> [name]         add an inspiration asset
  /toggle <asset>               share or unshare an asset with the model
  /assets                       list assets
  /concepts                     list concepts
  /select <concept>|none        focus a concept
  /finalize <concept>           finalize and build its tech pack
  /spec <concept>               open the specification view
  /techpack <concept>           show the tech pack
  /regen <concept>              regenerate the tech pack
  /edit <concept> <instruction> edit the primary image
  /refresh <concept>            re-render stale illustrations and flats
  /produce <concept> photo|video [scenario]
  /gallery                      list runway renders
  /quit
Concepts and assets can be given by list number or id.`

type repl struct {
	s   *studio.Studio
	in  *bufio.Scanner
	out io.Writer
}

func newREPL(s *studio.Studio, in io.Reader, out io.Writer) *repl {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return &repl{s: s, in: sc, out: out}
}

func (r *repl) Run(ctx context.Context) error {
	r.printChat(r.s.Snapshot().Chat)
	fmt.Fprintln(r.out, "(/help for commands)")
	for {
		fmt.Fprint(r.out, "> ")
		if !r.in.Scan() {
			return r.in.Err()
		}
		line := strings.TrimSpace(r.in.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}
		before := len(r.s.Snapshot().Chat)
		if err := r.exec(ctx, line); err != nil {
			fmt.Fprintln(r.out, "error:", err)
		}
		r.s.Wait()
		if chat := r.s.Snapshot().Chat; len(chat) > before {
			r.printChat(chat[before:])
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (r *repl) exec(ctx context.Context, line string) error {
	if !strings.HasPrefix(line, "/") {
		if _, err := r.s.SendMessage(ctx, line); err != nil && !errors.Is(err, studio.ErrEmptyMessage) {
			return err
		}
		r.s.Wait()
		if snap := r.s.Snapshot(); len(snap.Concepts) > 0 {
			r.printConcepts(snap)
		}
		return nil
	}

	cmd, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	switch cmd {
	case "help":
		fmt.Fprintln(r.out, replHelp)
	case "upload":
		return r.upload(rest)
	case "toggle":
		id, err := r.asset(rest)
		if err != nil {
			return err
		}
		shared, err := r.s.ToggleAssetDisclosure(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "shared: %v\n", shared)
	case "assets":
		r.printAssets(r.s.Snapshot())
	case "concepts":
		r.printConcepts(r.s.Snapshot())
	case "select":
		if rest == "none" || rest == "" {
			return r.s.SelectConcept("")
		}
		id, err := r.concept(rest)
		if err != nil {
			return err
		}
		return r.s.SelectConcept(id)
	case "finalize":
		id, err := r.concept(rest)
		if err != nil {
			return err
		}
		if err := r.s.FinalizeConcept(id); err != nil {
			return err
		}
		r.s.Wait()
		return r.printTechPack(id)
	case "spec":
		id, err := r.concept(rest)
		if err != nil {
			return err
		}
		return r.s.OpenSpecification(id)
	case "techpack":
		id, err := r.concept(rest)
		if err != nil {
			return err
		}
		return r.printTechPack(id)
	case "regen":
		id, err := r.concept(rest)
		if err != nil {
			return err
		}
		if _, err := r.s.RegenerateTechPack(ctx, id); err != nil {
			return err
		}
		return r.printTechPack(id)
	case "edit":
		ref, instruction, _ := strings.Cut(rest, " ")
		id, err := r.concept(ref)
		if err != nil {
			return err
		}
		c, _ := r.s.Snapshot().Concept(id)
		if c.Images.Primary == nil {
			return fmt.Errorf("concept %s has no primary image yet", c.Name)
		}
		return r.s.ApplyEdit(ctx, edit.Request{ConceptID: id, ImageID: c.Images.Primary.ID, Instruction: instruction})
	case "refresh":
		id, err := r.concept(rest)
		if err != nil {
			return err
		}
		return r.s.RefreshDerivatives(ctx, id)
	case "produce":
		fields := strings.Fields(rest)
		if len(fields) < 2 {
			return errors.New("usage: /produce <concept> photo|video [scenario]")
		}
		id, err := r.concept(fields[0])
		if err != nil {
			return err
		}
		asset, err := r.s.Produce(ctx, id, strings.Join(fields[2:], " "), types.RunwayKind(fields[1]))
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "%s ready: %s (%s)\n", asset.Kind, asset.URL, asset.ScenarioLabel)
	case "gallery":
		r.printGallery(r.s.Snapshot())
	default:
		return fmt.Errorf("unknown command /%s (try /help)", cmd)
	}
	return nil
}

func (r *repl) upload(rest string) error {
	path, name, _ := strings.Cut(rest, " ")
	if path == "" {
		return errors.New("usage: /upload <path> [name]")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if name = strings.TrimSpace(name); name == "" {
		name = filepath.Base(path)
	}
	a, err := r.s.UploadAsset(types.Blob{MIMEType: http.DetectContentType(data), Data: data}, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "uploaded %s as %s (%s)\n", a.DisplayName, a.ID, a.Kind)
	return nil
}

// concept resolves a list number or id.
func (r *repl) concept(ref string) (string, error) {
	snap := r.s.Snapshot()
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(snap.Concepts) {
		return snap.Concepts[n-1].ID, nil
	}
	if _, ok := snap.Concept(ref); ok {
		return ref, nil
	}
	return "", fmt.Errorf("%w: concept %q", studio.ErrNotFound, ref)
}

func (r *repl) asset(ref string) (string, error) {
	assets := r.s.Snapshot().Assets
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(assets) {
		return assets[n-1].ID, nil
	}
	for _, a := range assets {
		if a.ID == ref || strings.EqualFold(a.DisplayName, ref) {
			return a.ID, nil
		}
	}
	return "", fmt.Errorf("%w: asset %q", studio.ErrNotFound, ref)
}

func (r *repl) printChat(msgs []types.ChatMessage) {
	for _, m := range msgs {
		switch m.Role {
		case types.RoleUser:
			continue
		case types.RoleSystem:
			fmt.Fprintf(r.out, "[studio] %s\n", m.Text)
		default:
			if m.ReasoningNote != "" {
				fmt.Fprintf(r.out, "  (%s)\n", m.ReasoningNote)
			}
			fmt.Fprintf(r.out, "designer: %s\n", m.Text)
		}
	}
}

func (r *repl) printAssets(snap types.Snapshot) {
	shared := map[string]bool{}
	for _, id := range snap.SelectedAssetIDs {
		shared[id] = true
	}
	tw := r.table()
	tw.AppendHeader(table.Row{"#", "Name", "Kind", "Shared", "ID"})
	for i, a := range snap.Assets {
		tw.AppendRow(table.Row{i + 1, a.DisplayName, a.Kind, yes(shared[a.ID]), a.ID})
	}
	tw.Render()
}

func (r *repl) printConcepts(snap types.Snapshot) {
	tw := r.table()
	tw.AppendHeader(table.Row{"#", "Name", "Primary", "Illustration", "Flat", "Tech pack", "Final", "Active"})
	for i, c := range snap.Concepts {
		tw.AppendRow(table.Row{
			i + 1, c.Name,
			slot(c, types.RolePrimary), slot(c, types.RoleArtistic), slot(c, types.RoleTechnical),
			yes(c.TechPack != nil), yes(c.Finalized), yes(c.ID == snap.ActiveConceptID),
		})
	}
	tw.Render()
}

func (r *repl) printTechPack(id string) error {
	c, ok := r.s.Snapshot().Concept(id)
	if !ok {
		return fmt.Errorf("%w: concept %s", studio.ErrNotFound, id)
	}
	if c.TechPack == nil {
		fmt.Fprintf(r.out, "%s has no tech pack yet\n", c.Name)
		return nil
	}
	tp := c.TechPack
	fmt.Fprintf(r.out, "%s  style %s  season %s  total %.2f %s\n", c.Name, tp.StyleNumber, tp.Season, tp.TotalCostEstimate, tp.Currency)

	bom := r.table()
	bom.SetTitle("Bill of materials")
	bom.AppendHeader(table.Row{"Location", "Item", "Description", "Qty", "Cost"})
	for _, b := range tp.BOM {
		bom.AppendRow(table.Row{b.Location, b.Item, b.Description, b.Quantity, fmt.Sprintf("%.2f", b.CostEstimate)})
	}
	bom.Render()

	pom := r.table()
	pom.SetTitle("Measurements")
	pom.AppendHeader(table.Row{"Point of measure", "Value", "Unit", "Tolerance"})
	for _, m := range tp.Measurements {
		pom.AppendRow(table.Row{m.PointOfMeasure, m.Value, m.Unit, m.Tolerance})
	}
	pom.Render()

	for _, n := range tp.ConstructionNotes {
		fmt.Fprintf(r.out, "  - %s\n", n)
	}
	if len(tp.SourcingResults) > 0 {
		src := r.table()
		src.SetTitle("Sourcing")
		src.AppendHeader(table.Row{"Supplier", "URL"})
		for _, s := range tp.SourcingResults {
			src.AppendRow(table.Row{s.Title, s.URL})
		}
		src.Render()
	}
	return nil
}

func (r *repl) printGallery(snap types.Snapshot) {
	tw := r.table()
	tw.AppendHeader(table.Row{"Kind", "Scenario", "Concept", "Created", "URL"})
	for _, g := range snap.Gallery {
		name := g.SourceConceptID
		if c, ok := snap.Concept(g.SourceConceptID); ok {
			name = c.Name
		}
		tw.AppendRow(table.Row{g.Kind, g.ScenarioLabel, name, g.CreatedAt.Format("15:04:05"), g.URL})
	}
	tw.Render()
}

func (r *repl) table() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(r.out)
	tw.SetStyle(table.StyleLight)
	return tw
}

func slot(c types.DesignConcept, role types.ImageRole) string {
	switch img := c.Images.Get(role); {
	case c.Pending.Has(role):
		return "rendering"
	case img == nil:
		return "-"
	case img.Placeholder:
		return "placeholder"
	case c.Stale(role):
		return "stale"
	default:
		return "ready"
	}
}

func yes(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
