package api

import (
	"context"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/trip-expenses/internal/expense"
)

var _ = Describe("Expense handlers", func() {
	var (
		client *apiClient
		store  *expense.Store
		files  memFiles
	)

	BeforeEach(func() {
		client, store, _, files = newTestAPI(BasicAuth{})
	})

	Describe("POST /api/expenses", func() {
		It("should create a manual expense", func() {
			resp := client.send(http.MethodPost, "/api/expenses", map[string]any{
				"merchant_name":      "Cafe Central",
				"amount":             "8.40",
				"currency":           "EUR",
				"transaction_date":   "2024-03-11",
				"transaction_time":   "09:30",
				"receipt_image_path": "receipts/cafe.jpg",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			e := decode[expense.Expense](resp)
			Expect(e.CaptureMethod).To(Equal(expense.CaptureManual))
			Expect(e.Amount.Equal(decimal.RequireFromString("8.4"))).To(BeTrue())
			Expect(*e.TransactionTime).To(Equal("09:30"))
		})

		It("should return 404 for an unknown trip", func() {
			resp := client.send(http.MethodPost, "/api/expenses", map[string]any{
				"trip_id":            4242,
				"merchant_name":      "Cafe Central",
				"amount":             "8.40",
				"currency":           "EUR",
				"transaction_date":   "2024-03-11",
				"receipt_image_path": "receipts/cafe.jpg",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(decode[errorResponse](resp).Error).To(ContainSubstring("trip"))

			all, err := store.Expenses.GetAll(context.Background(), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(BeEmpty())
		})

		It("should return 404 for an unknown category", func() {
			resp := client.send(http.MethodPost, "/api/expenses", map[string]any{
				"category_id":        77,
				"merchant_name":      "Cafe Central",
				"amount":             "8.40",
				"currency":           "EUR",
				"transaction_date":   "2024-03-11",
				"receipt_image_path": "receipts/cafe.jpg",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should report every invalid field", func() {
			resp := client.send(http.MethodPost, "/api/expenses", map[string]any{
				"merchant_name":      "",
				"amount":             -1,
				"currency":           "EURO",
				"transaction_date":   "2024-03-11",
				"receipt_image_path": "receipts/x.jpg",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(decode[errorResponse](resp).Fields).To(And(
				HaveKey("merchant_name"),
				HaveKey("amount"),
				HaveKey("currency"),
			))
		})
	})

	Describe("GET /api/expenses", func() {
		var trip *expense.Trip

		BeforeEach(func() {
			trip = createTrip(store, "Berlin")
			createExpense(store, &trip.ID, "Cafe", "10")
			createExpense(store, nil, "Loose", "3")
		})

		It("should list every expense with details", func() {
			resp := client.get("/api/expenses")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode[[]expense.ExpenseWithDetails](resp)).To(HaveLen(2))
		})

		It("should filter by trip", func() {
			list := decode[[]expense.ExpenseWithDetails](client.get("/api/expenses?trip_id=" + itoa(trip.ID)))
			Expect(list).To(HaveLen(1))
			Expect(*list[0].TripName).To(Equal("Berlin"))
		})

		It("should list unassigned expenses", func() {
			list := decode[[]expense.Expense](client.get("/api/expenses?unassigned=true"))
			Expect(list).To(HaveLen(1))
			Expect(list[0].MerchantName).To(Equal("Loose"))
		})

		It("should reject a bad trip id", func() {
			Expect(client.get("/api/expenses?trip_id=x").StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("PATCH /api/expenses/{id}", func() {
		It("should apply a partial update", func() {
			trip := createTrip(store, "Berlin")
			e := createExpense(store, nil, "Cafe", "10")

			resp := client.send(http.MethodPatch, "/api/expenses/"+itoa(e.ID), map[string]any{
				"trip_id":             trip.ID,
				"verification_status": "verified",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			updated := decode[expense.Expense](resp)
			Expect(*updated.TripID).To(Equal(trip.ID))
			Expect(updated.VerificationStatus).To(Equal(expense.VerificationVerified))
			Expect(updated.MerchantName).To(Equal("Cafe"))
		})

		It("should return 404 for an unknown expense", func() {
			resp := client.send(http.MethodPatch, "/api/expenses/9999", map[string]any{"notes": "x"})
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should return 404 when moving to an unknown trip", func() {
			e := createExpense(store, nil, "Cafe", "10")
			resp := client.send(http.MethodPatch, "/api/expenses/"+itoa(e.ID), map[string]any{"trip_id": 4242})
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("DELETE /api/expenses/{id}", func() {
		It("should remove the expense", func() {
			e := createExpense(store, nil, "Cafe", "10")
			Expect(client.do(http.MethodDelete, "/api/expenses/"+itoa(e.ID), nil, "").StatusCode).To(Equal(http.StatusNoContent))

			gone, err := store.Expenses.GetByID(context.Background(), e.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(gone).To(BeNil())
		})
	})

	Describe("receipt files", func() {
		It("should serve the receipt image", func() {
			e := createExpense(store, nil, "Cafe", "10")
			files[e.ReceiptImagePath] = []byte("jpeg bytes")

			resp := client.get("/api/expenses/" + itoa(e.ID) + "/receipt")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/jpeg"))
		})

		It("should return 404 when there is no thumbnail", func() {
			e := createExpense(store, nil, "Cafe", "10")
			Expect(client.get("/api/expenses/" + itoa(e.ID) + "/thumbnail").StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should return 404 when the file is missing", func() {
			e := createExpense(store, nil, "Cafe", "10")
			Expect(client.get("/api/expenses/" + itoa(e.ID) + "/receipt").StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /api/search", func() {
		It("should match merchant names", func() {
			createExpense(store, nil, "Cafe Central", "10")
			createExpense(store, nil, "Taxi", "20")

			list := decode[[]expense.ExpenseWithDetails](client.get("/api/search?q=central"))
			Expect(list).To(HaveLen(1))
			Expect(list[0].MerchantName).To(Equal("Cafe Central"))
		})

		It("should require a term", func() {
			Expect(client.get("/api/search?q=%20").StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/summary", func() {
		It("should count trips and expenses", func() {
			trip := createTrip(store, "Berlin")
			createExpense(store, &trip.ID, "Cafe", "10")
			createExpense(store, nil, "Loose", "2.5")

			summary := decode[expense.OverallSummary](client.get("/api/summary"))
			Expect(summary.TripCount).To(Equal(1))
			Expect(summary.ExpenseCount).To(Equal(2))
			Expect(summary.UnassignedCount).To(Equal(1))
			Expect(summary.TotalAmount.Equal(decimal.RequireFromString("12.5"))).To(BeTrue())
		})
	})
})

var _ = Describe("Catalog handlers", func() {
	var client *apiClient

	BeforeEach(func() {
		client, _, _, _ = newTestAPI(BasicAuth{})
	})

	It("should list the seeded categories", func() {
		categories := decode[[]expense.ExpenseCategory](client.get("/api/categories"))
		Expect(categories).To(HaveLen(8))
	})

	It("should protect the Uncategorized category", func() {
		Expect(client.do(http.MethodDelete, "/api/categories/8", nil, "").StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("should create and delete rules", func() {
		resp := client.send(http.MethodPost, "/api/rules", map[string]any{"pattern": " uber ", "category_id": 2, "priority": 5})
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		rule := decode[expense.CategorisationRule](resp)
		Expect(rule.Pattern).To(Equal("uber"))

		Expect(decode[[]expense.CategorisationRule](client.get("/api/rules"))).To(HaveLen(1))
		Expect(client.do(http.MethodDelete, "/api/rules/"+itoa(rule.ID), nil, "").StatusCode).To(Equal(http.StatusNoContent))
		Expect(client.do(http.MethodDelete, "/api/rules/"+itoa(rule.ID), nil, "").StatusCode).To(Equal(http.StatusNotFound))
	})

	It("should store settings", func() {
		resp := client.send(http.MethodPut, "/api/settings/default_currency", map[string]any{"value": "EUR"})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		got := decode[settingValue](client.get("/api/settings/default_currency"))
		Expect(*got.Value).To(Equal("EUR"))

		bad := client.send(http.MethodPut, "/api/settings/default_currency", map[string]any{"value": "EURO"})
		Expect(bad.StatusCode).To(Equal(http.StatusBadRequest))
	})
})
