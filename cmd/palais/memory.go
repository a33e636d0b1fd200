// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/palais-dev/palais/internal/memory"
	"github.com/palais-dev/palais/internal/store"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

const memoryPath = "/api/v1/memory"

func (c *cli) newMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Read and write the memory graph of a running server",
	}

	cmd.AddCommand(
		c.newMemoryStoreCmd(),
		c.newMemoryGetCmd(),
		c.newMemoryListCmd(),
		c.newMemorySearchCmd(),
		c.newMemoryRecallCmd(),
		c.newMemoryGraphCmd(),
		c.newMemoryLinkCmd(),
		c.newMemoryIngestCmd(),
		c.newMemoryTaskCmd("extract", "Schedule fact extraction for an episodic node"),
		c.newMemoryTaskCmd("reembed", "Schedule embedding and enrichment for a node"),
	)
	return cmd
}

func (c *cli) newMemoryStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store <content>",
		Short: "Store a new memory node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			summary, _ := cmd.Flags().GetString("summary")
			entityType, _ := cmd.Flags().GetString("entity-type")
			entityID, _ := cmd.Flags().GetString("entity-id")
			tags, _ := cmd.Flags().GetStringSlice("tag")

			in := memory.NodeInput{
				Kind:       store.NodeKind(kind),
				Content:    args[0],
				Summary:    summary,
				EntityType: store.EntityType(entityType),
				EntityID:   entityID,
				Tags:       tags,
				CreatedBy:  store.CreatorUser,
			}
			var n store.Node
			if err := c.call(cmd, memoryPath+"/nodes", in, &n); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), n)
		},
	}
	cmd.Flags().String("kind", string(store.NodeKindEpisodic), "node kind: episodic, semantic or procedural")
	cmd.Flags().String("summary", "", "short summary, embedded instead of the content when set")
	cmd.Flags().String("entity-type", "", "related entity type")
	cmd.Flags().String("entity-id", "", "related entity ID")
	cmd.Flags().StringSlice("tag", nil, "tag to attach (repeatable)")
	return cmd
}

func (c *cli) newMemoryGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a node with its edges and connected nodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.showNode(cmd, args[0], "/nodes/", &memory.Neighborhood{})
		},
	}
}

func (c *cli) newMemoryRecallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recall <id>",
		Short: "Show a node and every edge touching it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.showNode(cmd, args[0], "/recall/", &memory.Recall{})
		},
	}
}

func (c *cli) showNode(cmd *cobra.Command, rawID, prefix string, dest any) error {
	id, err := parseNodeID(rawID)
	if err != nil {
		return err
	}
	if err := c.fetch(cmd, memoryPath+prefix+strconv.FormatInt(id, 10), dest); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), dest)
}

func (c *cli) newMemoryListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memory nodes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			entityType, _ := cmd.Flags().GetString("entity-type")
			limit, _ := cmd.Flags().GetInt("limit")

			q := url.Values{}
			if kind != "" {
				q.Set("kind", kind)
			}
			if entityType != "" {
				q.Set("entityType", entityType)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			path := memoryPath + "/nodes"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			var body struct {
				Nodes []*store.Node `json:"nodes"`
			}
			if err := c.fetch(cmd, path, &body); err != nil {
				return err
			}
			printNodes(cmd.OutOrStdout(), body.Nodes)
			return nil
		},
	}
	cmd.Flags().String("kind", "", "filter by node kind")
	cmd.Flags().String("entity-type", "", "filter by entity type")
	cmd.Flags().Int("limit", 0, "maximum nodes to return")
	return cmd
}

func (c *cli) newMemorySearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memory by meaning and keywords",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityType, _ := cmd.Flags().GetString("entity-type")
			limit, _ := cmd.Flags().GetInt("limit")

			var body struct {
				Nodes []*store.Node `json:"nodes"`
			}
			in := memory.SearchInput{Query: args[0], Limit: limit, EntityType: store.EntityType(entityType)}
			if err := c.call(cmd, memoryPath+"/search", in, &body); err != nil {
				return err
			}
			printNodes(cmd.OutOrStdout(), body.Nodes)
			return nil
		},
	}
	cmd.Flags().String("entity-type", "", "filter by entity type")
	cmd.Flags().Int("limit", 0, "maximum results (server default 10)")
	return cmd
}

func (c *cli) newMemoryGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph <id>",
		Short: "Print the edges around a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseNodeID(args[0])
			if err != nil {
				return err
			}
			var g memory.Neighborhood
			if err := c.fetch(cmd, memoryPath+"/nodes/"+strconv.FormatInt(id, 10), &g); err != nil {
				return err
			}

			labels := map[int64]string{}
			for _, s := range g.Connected {
				labels[s.ID] = label(s.Summary, s.Content)
			}
			labels[g.Node.ID] = label(g.Node.Summary, g.Node.Content)

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "#%d [%s] %s\n", g.Node.ID, g.Node.Kind, labels[g.Node.ID])
			if len(g.Edges) == 0 {
				_, _ = fmt.Fprintln(out, "  (no edges)")
			}
			for _, e := range g.Edges {
				if e.SourceNodeID == g.Node.ID {
					_, _ = fmt.Fprintf(out, "  --%s(%.2f)--> #%d %s\n", e.Relation, e.Weight, e.TargetNodeID, labels[e.TargetNodeID])
				} else {
					_, _ = fmt.Fprintf(out, "  <--%s(%.2f)-- #%d %s\n", e.Relation, e.Weight, e.SourceNodeID, labels[e.SourceNodeID])
				}
			}
			return nil
		},
	}
}

func (c *cli) newMemoryLinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link <source-id> <relation> <target-id>",
		Short: "Create an edge between two nodes",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := parseNodeID(args[0])
			if err != nil {
				return err
			}
			dst, err := parseNodeID(args[2])
			if err != nil {
				return err
			}
			in := memory.EdgeInput{SourceNodeID: src, TargetNodeID: dst, Relation: store.Relation(args[1])}
			if cmd.Flags().Changed("weight") {
				w, _ := cmd.Flags().GetFloat64("weight")
				in.Weight = &w
			}
			var e store.Edge
			if err := c.call(cmd, memoryPath+"/edges", in, &e); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), e)
		},
	}
	cmd.Flags().Float64("weight", 1, "edge weight in [0,1]")
	return cmd
}

func (c *cli) newMemoryIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <entity-type> <entity-id> <action>",
		Short: "Report a domain event",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, _ := cmd.Flags().GetString("actor")
			before, _ := cmd.Flags().GetString("before")
			after, _ := cmd.Flags().GetString("after")
			ev := memory.Event{
				EntityType: args[0],
				EntityID:   args[1],
				Action:     args[2],
				ActorID:    actor,
				Before:     before,
				After:      after,
			}
			var body struct {
				Accepted bool        `json:"accepted"`
				Node     *store.Node `json:"node"`
			}
			if err := c.call(cmd, memoryPath+"/events", ev, &body); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !body.Accepted || body.Node == nil {
				_, _ = fmt.Fprintf(out, "Event %s ignored\n", ev.Action)
				return nil
			}
			_, _ = fmt.Fprintf(out, "Recorded episodic node #%d\n", body.Node.ID)
			return nil
		},
	}
	cmd.Flags().String("actor", "", "actor that caused the event")
	cmd.Flags().String("before", "", "state before the event")
	cmd.Flags().String("after", "", "state after the event")
	return cmd
}

func (c *cli) newMemoryTaskCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseNodeID(args[0])
			if err != nil {
				return err
			}
			var task struct {
				TaskID string `json:"taskId"`
				Status string `json:"status"`
			}
			if err := c.call(cmd, fmt.Sprintf("%s/nodes/%d/%s", memoryPath, id, action), nil, &task); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Task %s %s for node #%d\n", task.TaskID, task.Status, id)
			return nil
		},
	}
}

func (c *cli) fetch(cmd *cobra.Command, path string, dest any) error {
	client, err := c.client(cmd)
	if err != nil {
		return err
	}
	return client.getJSON(cmd.Context(), path, dest)
}

func (c *cli) call(cmd *cobra.Command, path string, body, dest any) error {
	client, err := c.client(cmd)
	if err != nil {
		return err
	}
	return client.postJSON(cmd.Context(), path, body, dest)
}

func parseNodeID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, palaiserr.Errorf(palaiserr.CodeCLIInputInvalid, "invalid node id %q", raw)
	}
	return id, nil
}

func printNodes(out io.Writer, nodes []*store.Node) {
	if len(nodes) == 0 {
		_, _ = fmt.Fprintln(out, "No memory nodes found.")
		return
	}
	for _, n := range nodes {
		_, _ = fmt.Fprintf(out, "#%d\t%s\t%s\n", n.ID, n.Kind, label(n.Summary, n.Content))
	}
}

// label is the one-line form of a node used in listings.
func label(summary, content string) string {
	s := summary
	if s == "" {
		s = content
	}
	const maxLabel = 80
	if r := []rune(s); len(r) > maxLabel {
		return string(r[:maxLabel-3]) + "..."
	}
	return s
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return palaiserr.Wrap(err, palaiserr.CodeCLIResponseInvalid, "printing response")
	}
	return nil
}
