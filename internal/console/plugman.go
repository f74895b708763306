// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package console is the operator front-end: the plugman command and an
// interactive line session that dispatches into the command table.
package console

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/holomush/plugman/internal/command"
	"github.com/holomush/plugman/internal/plugin"
	"github.com/holomush/plugman/internal/plugin/lifecycle"
	"github.com/holomush/plugman/internal/plugin/lookup"
)

// Permissions checked by the plugman command.
const (
	PermMain = "plugman.main" // any subcommand
	PermAll  = "plugman.all"  // the all / * batch forms
)

// CommandName is the label the plugman command is registered under.
const CommandName = "plugman"

// Lifecycle is the part of the lifecycle manager the console drives.
type Lifecycle interface {
	Enable(ctx context.Context, m *plugin.Module) lifecycle.Result
	Disable(ctx context.Context, m *plugin.Module) lifecycle.Result
	EnableAll(ctx context.Context) []lifecycle.Result
	DisableAll(ctx context.Context) []lifecycle.Result
	Load(ctx context.Context, name string) lifecycle.Result
	Unload(ctx context.Context, m *plugin.Module) lifecycle.Result
	Reload(ctx context.Context, m *plugin.Module) lifecycle.Result
	ReloadAll(ctx context.Context) []lifecycle.Result
}

// Plugman implements the plugman command.
type Plugman struct {
	life   Lifecycle
	lookup *lookup.Service
}

// NewPlugman creates the command handler.
func NewPlugman(life Lifecycle, lk *lookup.Service) *Plugman {
	return &Plugman{life: life, lookup: lk}
}

// Entry returns the host-owned table entry for the command.
func (p *Plugman) Entry() *command.Entry {
	return &command.Entry{
		Name:        CommandName,
		Aliases:     []string{"pm"},
		Description: "Manage plugins at runtime",
		Usage:       "<command> <subcommand> [plugin]",
		Permission:  PermMain,
		Owner:       command.Owner{Name: CommandName},
		Handler:     p.Handle,
	}
}

type subcommand struct {
	name   string
	args   string
	help   string
	target bool // requires a target argument
}

var subcommands = []subcommand{
	{name: "enable", args: "<plugin|all|*>", help: "Enable a plugin", target: true},
	{name: "disable", args: "<plugin|all|*>", help: "Disable a plugin", target: true},
	{name: "reload", args: "<plugin|all|*>", help: "Unload and load a plugin again", target: true},
	{name: "load", args: "<plugin>", help: "Load a plugin from the plugin directory", target: true},
	{name: "unload", args: "<plugin>", help: "Unload a plugin", target: true},
	{name: "list", args: "[-v]", help: "List loaded plugins"},
	{name: "info", args: "<plugin>", help: "Show plugin details", target: true},
	{name: "usage", args: "<plugin>", help: "List a plugin's commands", target: true},
	{name: "lookup", args: "<command>", help: "Find the plugins declaring a command", target: true},
	{name: "help", help: "Show this help"},
}

func findSubcommand(name string) (subcommand, bool) {
	for _, s := range subcommands {
		if s.name == name {
			return s, true
		}
	}
	return subcommand{}, false
}

// Handle runs one plugman invocation. Words after the subcommand are
// joined with single spaces to form the target, since plugin names may
// contain spaces.
func (p *Plugman) Handle(ctx context.Context, call *command.Call) (string, error) {
	if len(call.Args) == 0 {
		return p.help(call.Label), nil
	}

	sub, ok := findSubcommand(strings.ToLower(call.Args[0]))
	if !ok {
		return fmt.Sprintf("Unknown subcommand %q. Try \"%s help\".", call.Args[0], call.Label), nil
	}
	target := strings.Join(call.Args[1:], " ")
	if sub.target && target == "" {
		return "", command.ErrInvalidArgs(call.Label, strings.TrimSpace(call.Label+" "+sub.name+" "+sub.args))
	}

	switch sub.name {
	case "enable":
		return p.transition(ctx, call, target, "enabled", p.life.EnableAll, p.life.Enable)
	case "disable":
		return p.transition(ctx, call, target, "disabled", p.life.DisableAll, p.life.Disable)
	case "reload":
		return p.transition(ctx, call, target, "reloaded", p.life.ReloadAll, p.life.Reload)
	case "load":
		return p.life.Load(ctx, target).Reason, nil
	case "unload":
		return p.single(ctx, target, p.life.Unload), nil
	case "list":
		return p.list(len(call.Args) > 1 && call.Args[1] == "-v"), nil
	case "info":
		return p.info(target), nil
	case "usage":
		return p.usage(target), nil
	case "lookup":
		return p.lookupCommand(target), nil
	default:
		return p.help(call.Label), nil
	}
}

func isAll(target string) bool {
	return strings.EqualFold(target, "all") || target == "*"
}

type batchFunc func(context.Context) []lifecycle.Result

type singleFunc func(context.Context, *plugin.Module) lifecycle.Result

// transition runs a single or batch transition. The batch forms need PermAll.
func (p *Plugman) transition(ctx context.Context, call *command.Call, target, verb string, all batchFunc, one singleFunc) (string, error) {
	if !isAll(target) {
		return p.single(ctx, target, one), nil
	}
	if !call.Sender.HasPermission(PermAll) {
		return "", command.ErrPermissionDenied(call.Label, PermAll)
	}
	return renderBatch(verb, all(ctx)), nil
}

func (p *Plugman) single(ctx context.Context, target string, one singleFunc) string {
	m, ok := p.lookup.FindByName(target)
	if !ok {
		return "That is not a valid plugin."
	}
	return one(ctx, m).Reason
}

// renderBatch summarises a batch: one headline plus a line per failure.
func renderBatch(verb string, results []lifecycle.Result) string {
	var failures []lifecycle.Result
	for _, r := range results {
		if !r.OK() {
			failures = append(failures, r)
		}
	}
	if len(failures) == 0 {
		return fmt.Sprintf("All plugins have been %s.", verb)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d plugins could not be %s:", len(failures), len(results), verb)
	for _, r := range failures {
		fmt.Fprintf(&b, "\n  %s: %s", r.Name, r.Reason)
	}
	return b.String()
}

func (p *Plugman) help(label string) string {
	var b strings.Builder
	b.WriteString("-- PlugMan --")
	for _, s := range subcommands {
		line := strings.TrimSpace(label + " " + s.name + " " + s.args)
		fmt.Fprintf(&b, "\n/%s - %s", line, s.help)
	}
	return b.String()
}

func (p *Plugman) list(verbose bool) string {
	names := p.lookup.Names(verbose)
	if len(names) == 0 {
		return "No plugins are loaded."
	}
	return fmt.Sprintf("Plugins (%d): %s", len(names), strings.Join(names, ", "))
}

func (p *Plugman) info(target string) string {
	m, ok := p.lookup.FindByName(target)
	if !ok {
		return "That is not a valid plugin."
	}
	desc := m.Descriptor()

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)", desc.FullName(), m.State())
	if desc.Description != "" {
		fmt.Fprintf(&b, "\nDescription: %s", desc.Description)
	}
	if len(desc.Authors) > 0 {
		fmt.Fprintf(&b, "\nAuthors: %s", strings.Join(desc.Authors, ", "))
	}
	fmt.Fprintf(&b, "\nType: %s", desc.Type)
	fmt.Fprintf(&b, "\nCommands: %s", lookup.Usages(m))
	fmt.Fprintf(&b, "\nLoaded: %s from %s", m.LoadedAt().Format(time.RFC3339), m.Path())
	fmt.Fprintf(&b, "\nInstance: %s", m.ID())
	return b.String()
}

func (p *Plugman) usage(target string) string {
	m, ok := p.lookup.FindByName(target)
	if !ok {
		return "That is not a valid plugin."
	}
	return m.Name() + ": " + lookup.Usages(m)
}

func (p *Plugman) lookupCommand(cmd string) string {
	mods := p.lookup.FindByCommand(cmd)
	if len(mods) == 0 {
		return fmt.Sprintf("No loaded plugin declares %q.", cmd)
	}
	names := make([]string, len(mods))
	for i, m := range mods {
		names[i] = m.Name()
	}
	return fmt.Sprintf("%s is declared by: %s", strings.TrimPrefix(cmd, "/"), strings.Join(names, ", "))
}
