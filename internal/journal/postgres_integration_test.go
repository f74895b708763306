// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package journal_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/plugman/internal/journal"
	"github.com/holomush/plugman/internal/plugin"
	"github.com/holomush/plugman/internal/plugin/lifecycle"
)

var _ = Describe("Postgres journal", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		dsn       string
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("plugman_test"),
			postgres.WithUsername("plugman"),
			postgres.WithPassword("plugman"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	It("reports a missing schema before migrating", func() {
		j, err := journal.OpenPostgres(ctx, dsn)
		Expect(err).NotTo(HaveOccurred())
		defer j.Close()

		err = j.Record(ctx, lifecycle.Result{Op: lifecycle.OpLoad, Name: "demo", Outcome: lifecycle.OutcomeDone})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("plugman_transitions"))
	})

	It("migrates up and reports no pending versions", func() {
		m, err := journal.NewMigrator(dsn)
		Expect(err).NotTo(HaveOccurred())
		defer m.Close()

		Expect(m.Up()).To(Succeed())
		pending, err := m.Pending()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())

		version, dirty, err := m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeNumerically(">", 0))
		Expect(dirty).To(BeFalse())
	})

	It("records transitions and returns them newest first", func() {
		j, err := journal.Open(ctx, journal.DriverPostgres, dsn)
		Expect(err).NotTo(HaveOccurred())
		defer j.Close()

		m := plugin.NewModule(&plugin.Descriptor{Name: "Greeter", Version: "1.2.0"}, "greeter.plugin", plugin.NewLoader())
		Expect(j.Record(ctx, lifecycle.Result{Op: lifecycle.OpLoad, Name: "Greeter", Module: m, Outcome: lifecycle.OutcomeDone})).To(Succeed())
		Expect(j.Record(ctx, lifecycle.Result{
			Op: lifecycle.OpEnable, Name: "Greeter", Module: m, Outcome: lifecycle.OutcomeFailed,
			Code: plugin.CodeHookFailed, Err: errors.New("boom"),
			Warnings: []error{errors.New("listeners not removed")},
		})).To(Succeed())
		Expect(j.Record(ctx, lifecycle.Result{Op: lifecycle.OpLoad, Name: "other", Outcome: lifecycle.OutcomeNoop})).To(Succeed())

		entries, err := j.History(ctx, journal.Query{Module: "greeter"})
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].Op).To(Equal("enable"))
		Expect(entries[0].Error).To(Equal("boom"))
		Expect(entries[0].Warnings).To(Equal([]string{"listeners not removed"}))
		Expect(entries[0].ModuleID).To(Equal(m.ID().String()))
		Expect(entries[1].Op).To(Equal("load"))

		all, err := j.History(ctx, journal.Query{Limit: 10})
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(3))
	})

	It("rejects unknown outcomes", func() {
		j, err := journal.OpenPostgres(ctx, dsn)
		Expect(err).NotTo(HaveOccurred())
		defer j.Close()

		err = j.Record(ctx, lifecycle.Result{Op: lifecycle.OpLoad, Name: "demo", Outcome: "exploded"})
		Expect(err).To(HaveOccurred())
	})

	It("migrates back down", func() {
		m, err := journal.NewMigrator(dsn)
		Expect(err).NotTo(HaveOccurred())
		defer m.Close()

		Expect(m.Down()).To(Succeed())
		version, _, err := m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
	})
})
