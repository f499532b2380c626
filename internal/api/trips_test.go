package api

import (
	"context"
	"encoding/csv"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/trip-expenses/internal/expense"
)

func createTrip(store *expense.Store, name string) *expense.Trip {
	trip, err := store.Trips.Create(context.Background(), expense.CreateTripModel{
		Name:      name,
		StartDate: expense.NewDate(2024, 3, 10),
		EndDate:   expense.NewDate(2024, 3, 14),
	})
	Expect(err).NotTo(HaveOccurred())
	return trip
}

func createExpense(store *expense.Store, tripID *int64, merchant, amount string) *expense.Expense {
	e, err := store.Expenses.Create(context.Background(), expense.CreateExpenseModel{
		TripID:           tripID,
		MerchantName:     merchant,
		Amount:           decimal.RequireFromString(amount),
		Currency:         "EUR",
		TransactionDate:  expense.NewDate(2024, 3, 11),
		ReceiptImagePath: "receipts/" + merchant + ".jpg",
	})
	Expect(err).NotTo(HaveOccurred())
	return e
}

var _ = Describe("Trip handlers", func() {
	var (
		client *apiClient
		store  *expense.Store
	)

	BeforeEach(func() {
		client, store, _, _ = newTestAPI(BasicAuth{})
	})

	Describe("POST /api/trips", func() {
		It("should create the trip", func() {
			resp := client.send(http.MethodPost, "/api/trips", map[string]any{
				"name":        "Berlin Offsite",
				"start_date":  "2024-03-10",
				"end_date":    "2024-03-14",
				"destination": "Berlin",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			trip := decode[expense.Trip](resp)
			Expect(trip.ID).To(BeNumerically(">", 0))
			Expect(trip.Status).To(Equal(expense.TripActive))
			Expect(trip.DefaultCurrency).To(Equal("USD"))
			Expect(*trip.Destination).To(Equal("Berlin"))
		})

		It("should report invalid fields", func() {
			resp := client.send(http.MethodPost, "/api/trips", map[string]any{
				"name":       "Backwards",
				"start_date": "2024-03-14",
				"end_date":   "2024-03-10",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(decode[errorResponse](resp).Fields).To(HaveKey("end_date"))
		})
	})

	Describe("GET /api/trips/{id}", func() {
		It("should return 404 for an unknown trip", func() {
			Expect(client.get("/api/trips/9999").StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should return 400 for a malformed id", func() {
			Expect(client.get("/api/trips/abc").StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should return the trip", func() {
			trip := createTrip(store, "Lisbon")
			resp := client.get("/api/trips/" + itoa(trip.ID))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode[expense.Trip](resp).Name).To(Equal("Lisbon"))
		})
	})

	Describe("PATCH /api/trips/{id}", func() {
		It("should change only the supplied fields and clear nulls", func() {
			trip, err := store.Trips.Create(context.Background(), expense.CreateTripModel{
				Name:        "Lisbon",
				StartDate:   expense.NewDate(2024, 5, 1),
				EndDate:     expense.NewDate(2024, 5, 3),
				Destination: ptr("Lisbon"),
				Purpose:     ptr("Conference"),
			})
			Expect(err).NotTo(HaveOccurred())

			resp := client.send(http.MethodPatch, "/api/trips/"+itoa(trip.ID), map[string]any{
				"status":  "completed",
				"purpose": nil,
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			updated := decode[expense.Trip](resp)
			Expect(updated.Status).To(Equal(expense.TripCompleted))
			Expect(updated.Purpose).To(BeNil())
			Expect(*updated.Destination).To(Equal("Lisbon"))
			Expect(updated.Name).To(Equal("Lisbon"))
		})
	})

	Describe("DELETE /api/trips/{id}", func() {
		It("should refuse a trip with expenses", func() {
			trip := createTrip(store, "Busy")
			createExpense(store, &trip.ID, "Hotel", "100")

			resp := client.do(http.MethodDelete, "/api/trips/"+itoa(trip.ID), nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})

		It("should delete an empty trip", func() {
			trip := createTrip(store, "Empty")
			Expect(client.do(http.MethodDelete, "/api/trips/"+itoa(trip.ID), nil, "").StatusCode).To(Equal(http.StatusNoContent))
			Expect(client.get("/api/trips/" + itoa(trip.ID)).StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("statistics and breakdown", func() {
		var trip *expense.Trip

		BeforeEach(func() {
			trip = createTrip(store, "Berlin")
			createExpense(store, &trip.ID, "Cafe", "10.00")
			createExpense(store, &trip.ID, "Taxi", "15.50")
		})

		It("should sum the trip's expenses", func() {
			resp := client.get("/api/trips/" + itoa(trip.ID) + "/statistics")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			stats := decode[expense.TripStatistics](resp)
			Expect(stats.ExpenseCount).To(Equal(2))
			Expect(stats.TotalAmount.Equal(decimal.RequireFromString("25.5"))).To(BeTrue())
		})

		It("should group by category", func() {
			resp := client.get("/api/trips/" + itoa(trip.ID) + "/categories")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			breakdown := decode[[]expense.CategoryBreakdown](resp)
			Expect(breakdown).To(HaveLen(1))
			Expect(breakdown[0].CategoryName).To(Equal("Uncategorized"))
		})

		It("should list statistics for every trip", func() {
			other := createTrip(store, "Empty")
			resp := client.get("/api/statistics")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			all := decode[map[int64]expense.TripStatistics](resp)
			Expect(all).To(HaveLen(2))
			Expect(all[other.ID].ExpenseCount).To(BeZero())
		})
	})

	Describe("GET /api/trips/{id}/export", func() {
		var trip *expense.Trip

		BeforeEach(func() {
			trip = createTrip(store, "Berlin Offsite")
			createExpense(store, &trip.ID, "Cafe", "10.00")
		})

		It("should download CSV", func() {
			resp := client.get("/api/trips/" + itoa(trip.ID) + "/export?format=csv")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/csv"))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("expenses_berlin_offsite.csv"))

			records, err := csv.NewReader(resp.Body).ReadAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
			Expect(records[1][4]).To(Equal("Cafe"))
		})

		It("should default to XLSX", func() {
			resp := client.get("/api/trips/" + itoa(trip.ID) + "/export")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(ContainSubstring("spreadsheetml"))
		})

		It("should reject unknown formats", func() {
			Expect(client.get("/api/trips/" + itoa(trip.ID) + "/export?format=pdf").StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /api/trips/{id}/reassign", func() {
		It("should move expenses to another trip", func() {
			from := createTrip(store, "From")
			to := createTrip(store, "To")
			createExpense(store, &from.ID, "A", "1")
			createExpense(store, &from.ID, "B", "2")

			resp := client.send(http.MethodPost, "/api/trips/"+itoa(from.ID)+"/reassign", map[string]any{"to": to.ID})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode[reassignResponse](resp).Moved).To(Equal(int64(2)))
		})

		It("should return 404 for an unknown target", func() {
			from := createTrip(store, "From")
			resp := client.send(http.MethodPost, "/api/trips/"+itoa(from.ID)+"/reassign", map[string]any{"to": 9999})
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})
})
