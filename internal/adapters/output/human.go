package output

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pterm/pterm"

	"github.com/mikey-austin/massbridge/internal/core"
	"github.com/mikey-austin/massbridge/pkg/mab"
)

// HumanPrinter prints human-readable output.
type HumanPrinter struct{}

// Print renders human output.
func (HumanPrinter) Print(v any) error {
	switch data := v.(type) {
	case core.NodesResult:
		return printNodes(data)
	case core.StatusResult:
		return printStatus(data)
	case core.BrowseResult:
		return printBrowse(data)
	case core.ControlsResult:
		return printControls(data)
	case core.RawResult:
		return printRaw(data)
	default:
		_, err := fmt.Fprintln(os.Stdout, "ok")
		return err
	}
}

func printNodes(result core.NodesResult) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "NAME\tKIND\tNODE_ID"); err != nil {
		return err
	}
	for _, node := range result.Nodes {
		_, err := fmt.Fprintf(tw, "%s\t%s\t%s\n", node.Name, node.Kind, node.NodeID)
		if err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printStatus(result core.StatusResult) error {
	state := result.State.State
	if state == "" {
		state = "unknown"
	}
	volume := fmt.Sprintf("vol %d%%", int(result.State.Volume*100+0.5))
	if result.State.Muted {
		volume = "muted"
	}

	item := ""
	position := ""
	if media := result.State.Media; media != nil {
		item = formatMedia(media)
		position = formatPosition(media.PositionS, media.DurationS)
	}

	line := strings.TrimSpace(fmt.Sprintf("%s  [%s]  %s  %s  %s", result.Player.Name, state, item, position, volume))
	if _, err := fmt.Fprintln(os.Stdout, line); err != nil {
		return err
	}
	if result.State.QueueName != "" {
		shuffle := ""
		if result.State.Shuffle {
			shuffle = " (shuffle)"
		}
		_, err := fmt.Fprintf(os.Stdout, "Queue: %s%s\n", result.State.QueueName, shuffle)
		return err
	}
	return nil
}

func printBrowse(result core.BrowseResult) error {
	return pterm.DefaultTree.WithRoot(treeNode(result.Root)).Render()
}

func treeNode(node mab.BrowseNode) pterm.TreeNode {
	text := node.Title
	if node.CanPlay {
		text += "  " + pterm.Gray(node.URI)
	}
	out := pterm.TreeNode{Text: text}
	for _, child := range node.Children {
		out.Children = append(out.Children, treeNode(child))
	}
	return out
}

func printControls(result core.ControlsResult) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "CONTROL_ID\tTYPE\tNAME\tSOURCE\tENABLED"); err != nil {
		return err
	}
	for _, ctl := range result.Controls {
		enabled := ""
		if ctl.Enabled {
			enabled = "yes"
		}
		_, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", ctl.ControlID, ctl.ControlType, ctl.Name, ctl.Source, enabled)
		if err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printRaw(result core.RawResult) error {
	raw, err := rawBytes(result.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(raw))
	return err
}

func rawBytes(data any) ([]byte, error) {
	switch val := data.(type) {
	case json.RawMessage:
		return val, nil
	case []byte:
		return val, nil
	default:
		out, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

func formatMedia(media *mab.MediaState) string {
	if media.Artist != "" && media.Title != "" {
		return fmt.Sprintf("%s - %s", media.Artist, media.Title)
	}
	if media.Title != "" {
		return media.Title
	}
	return media.ContentID
}

func formatPosition(pos, dur int64) string {
	if pos == 0 && dur == 0 {
		return ""
	}
	if dur > 0 {
		percent := (pos * 100) / dur
		return fmt.Sprintf("%s / %s (%d%%)", formatSeconds(pos), formatSeconds(dur), percent)
	}
	return formatSeconds(pos)
}

func formatSeconds(secs int64) string {
	if secs <= 0 {
		return "0:00"
	}
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
