package expense

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Queries", func() {
	var (
		ctx     context.Context
		store   *Store
		q       *Queries
		tripA   *Trip
		tripB   *Trip
		dinner  *Expense
		taxi    *Expense
		unfiled *Expense
	)

	BeforeEach(func() {
		ctx = context.Background()
		store, _ = newTestStore()
		q = store.Stats

		var err error
		a := tripModel("Trip A", NewDate(2024, 10, 1), NewDate(2024, 10, 3))
		a.Destination = ptr("Madrid")
		tripA, err = store.Trips.Create(ctx, a)
		Expect(err).NotTo(HaveOccurred())
		tripB, err = store.Trips.Create(ctx, tripModel("Trip B", NewDate(2024, 11, 1), NewDate(2024, 11, 2)))
		Expect(err).NotTo(HaveOccurred())

		dm := expenseModel(&tripA.ID, "Casa Lucio", "10.00", NewDate(2024, 10, 2))
		dm.CategoryID = 1
		dm.TransactionTime = ptr("21:15")
		dm.Notes = ptr("100% business")
		dinner, err = store.Expenses.Create(ctx, dm)
		Expect(err).NotTo(HaveOccurred())

		tm := expenseModel(&tripA.ID, "Cabify", "15.50", NewDate(2024, 10, 1))
		tm.CategoryID = 2
		taxi, err = store.Expenses.Create(ctx, tm)
		Expect(err).NotTo(HaveOccurred())

		unfiled, err = store.Expenses.Create(ctx, expenseModel(nil, "Stationery", "3.25", NewDate(2024, 9, 30)))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("TripStatistics", func() {
		It("should count and total the trip's expenses", func() {
			s, err := q.TripStatistics(ctx, tripA.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.ExpenseCount).To(Equal(2))
			Expect(s.TotalAmount.Equal(dec("25.50"))).To(BeTrue())
		})

		It("should return zeroes for a trip without expenses", func() {
			s, err := q.TripStatistics(ctx, tripB.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.ExpenseCount).To(BeZero())
			Expect(s.TotalAmount.IsZero()).To(BeTrue())
		})
	})

	Describe("AllTripsStatistics", func() {
		It("should include every trip", func() {
			all, err := q.AllTripsStatistics(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(2))
			Expect(all[tripA.ID].ExpenseCount).To(Equal(2))
			Expect(all[tripA.ID].TotalAmount.Equal(dec("25.5"))).To(BeTrue())
			Expect(all[tripB.ID].ExpenseCount).To(BeZero())
			Expect(all[tripB.ID].TotalAmount.IsZero()).To(BeTrue())
		})
	})

	Describe("CategoryBreakdown", func() {
		It("should group by category, largest total first", func() {
			_, err := store.Expenses.Create(ctx, func() CreateExpenseModel {
				m := expenseModel(&tripA.ID, "Tapas bar", "5.00", NewDate(2024, 10, 3))
				m.CategoryID = 1
				return m
			}())
			Expect(err).NotTo(HaveOccurred())

			breakdown, err := q.CategoryBreakdown(ctx, tripA.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(breakdown).To(HaveLen(2))
			Expect(breakdown[0].CategoryName).To(Equal("Transportation"))
			Expect(breakdown[0].TotalAmount.Equal(dec("15.5"))).To(BeTrue())
			Expect(breakdown[1].CategoryName).To(Equal("Meals"))
			Expect(breakdown[1].ExpenseCount).To(Equal(2))
			Expect(breakdown[1].AverageAmount.Equal(dec("7.5"))).To(BeTrue())
		})

		It("should be empty for a trip without expenses", func() {
			breakdown, err := q.CategoryBreakdown(ctx, tripB.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(breakdown).To(BeEmpty())
		})
	})

	Describe("ExpensesWithDetails", func() {
		It("should join trip and category names", func() {
			rows, err := q.ExpensesWithDetails(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(3))
			Expect(rows[0].ID).To(Equal(dinner.ID))
			Expect(*rows[0].TripName).To(Equal("Trip A"))
			Expect(rows[0].CategoryName).To(Equal("Meals"))
			Expect(rows[2].ID).To(Equal(unfiled.ID))
			Expect(rows[2].TripName).To(BeNil())
			Expect(rows[2].CategoryName).To(Equal("Uncategorized"))
		})
	})

	Describe("Search", func() {
		It("should match merchant names case-insensitively", func() {
			rows, err := q.Search(ctx, "CABIFY", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(1))
			Expect(rows[0].ID).To(Equal(taxi.ID))
		})

		It("should match category names", func() {
			rows, err := q.Search(ctx, "uncategor", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(1))
			Expect(rows[0].ID).To(Equal(unfiled.ID))
		})

		It("should treat wildcards literally", func() {
			rows, err := q.Search(ctx, "100%", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(1))
			Expect(rows[0].ID).To(Equal(dinner.ID))

			rows, err = q.Search(ctx, "_", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(BeEmpty())
		})

		It("should scope to a trip", func() {
			rows, err := q.Search(ctx, "a", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(3))

			rows, err = q.Search(ctx, "a", &tripA.ID)
			Expect(err).NotTo(HaveOccurred())
			ids := []int64{}
			for _, r := range rows {
				ids = append(ids, r.ID)
			}
			Expect(ids).To(ConsistOf(dinner.ID, taxi.ID))

			rows, err = q.Search(ctx, "a", &tripB.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(BeEmpty())
		})

		It("should fold case beyond ASCII", func() {
			cafe, err := store.Expenses.Create(ctx, expenseModel(&tripB.ID, "CAFÉ MÜNCHEN", "4.20", NewDate(2024, 11, 1)))
			Expect(err).NotTo(HaveOccurred())

			for _, term := range []string{"MÜNCHEN", "münchen", "café"} {
				rows, err := q.Search(ctx, term, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(rows).To(HaveLen(1), term)
				Expect(rows[0].ID).To(Equal(cafe.ID))
			}
		})
	})

	Describe("ExportData", func() {
		It("should return the trip's expenses in chronological order", func() {
			rows, err := q.ExportData(ctx, tripA.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(2))
			Expect(rows[0].ExpenseID).To(Equal(taxi.ID))
			Expect(rows[1].ExpenseID).To(Equal(dinner.ID))
			Expect(rows[1].TripName).To(Equal("Trip A"))
			Expect(*rows[1].TripDestination).To(Equal("Madrid"))
			Expect(*rows[1].TransactionTime).To(Equal("21:15"))
			Expect(rows[1].CategoryName).To(Equal("Meals"))
		})

		It("should be empty for a trip without expenses", func() {
			rows, err := q.ExportData(ctx, tripB.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).NotTo(BeNil())
			Expect(rows).To(BeEmpty())
		})
	})

	Describe("OverallSummary", func() {
		It("should total everything", func() {
			s, err := q.OverallSummary(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.TripCount).To(Equal(2))
			Expect(s.ExpenseCount).To(Equal(3))
			Expect(s.UnassignedCount).To(Equal(1))
			Expect(s.TotalAmount.Equal(dec("28.75"))).To(BeTrue())
		})
	})
})
