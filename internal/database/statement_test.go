package database

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Assignments", func() {
	var a *Assignments

	BeforeEach(func() {
		a = &Assignments{}
	})

	Describe("Update", func() {
		It("should render only the assigned columns in order", func() {
			a.Set("notes", "x").Set("amount", 12.5)

			query, args, err := a.Update("expense", "id", int64(7))
			Expect(err).NotTo(HaveOccurred())
			Expect(query).To(Equal("UPDATE expense SET notes = ?, amount = ? WHERE id = ?"))
			Expect(args).To(Equal([]any{"x", 12.5, int64(7)}))
		})

		It("should keep nil values as parameters", func() {
			a.Set("notes", nil)

			_, args, err := a.Update("expense", "id", int64(1))
			Expect(err).NotTo(HaveOccurred())
			Expect(args).To(Equal([]any{nil, int64(1)}))
		})

		When("nothing was assigned", func() {
			It("should return ErrNoAssignments", func() {
				_, _, err := a.Update("expense", "id", 1)
				Expect(err).To(MatchError(ErrNoAssignments))
			})
		})

		When("the key column is not a plain identifier", func() {
			It("should refuse to build", func() {
				a.Set("notes", "x")
				_, _, err := a.Update("expense", "id; --", 1)
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Insert", func() {
		It("should render placeholders for every column", func() {
			a.Set("name", "Berlin").Set("start_date", "2024-03-01")

			query, args, err := a.Insert("trip")
			Expect(err).NotTo(HaveOccurred())
			Expect(query).To(Equal("INSERT INTO trip (name, start_date) VALUES (?, ?)"))
			Expect(args).To(Equal([]any{"Berlin", "2024-03-01"}))
		})

		It("should fall back to default values without columns", func() {
			query, args, err := a.Insert("trip")
			Expect(err).NotTo(HaveOccurred())
			Expect(query).To(Equal("INSERT INTO trip DEFAULT VALUES"))
			Expect(args).To(BeEmpty())
		})

		It("should reject an invalid table name", func() {
			_, _, err := a.Insert("trip; DROP TABLE trip")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Set", func() {
		It("should reject column names that are not identifiers", func() {
			a.Set("notes = 'x', amount", 1)
			_, _, err := a.Update("expense", "id", 1)
			Expect(err).To(MatchError(ContainSubstring("invalid column name")))
		})

		It("should reject a column assigned twice", func() {
			a.Set("notes", "a").Set("notes", "b")
			_, _, err := a.Insert("expense")
			Expect(err).To(MatchError(ContainSubstring("assigned twice")))
			Expect(a.Len()).To(Equal(1))
		})

		It("should report the assigned columns", func() {
			a.Set("name", "x").Set("status", "active")
			Expect(a.Columns()).To(Equal([]string{"name", "status"}))
			Expect(a.Len()).To(Equal(2))
		})
	})
})

var _ = Describe("Wrap", func() {
	It("should pass nil through", func() {
		Expect(Wrap("trip", "create", nil)).To(BeNil())
	})

	It("should leave taxonomy errors untouched", func() {
		nf := &NotFoundError{Entity: "trip", ID: 3}
		Expect(Wrap("trip", "update", nf)).To(BeIdenticalTo(nf))
	})

	It("should leave schema errors untouched", func() {
		se := &SchemaError{Index: 2, Statement: "CREATE TABLE trip (id INTEGER)", Err: errFake("disk full")}
		Expect(Wrap("database", "initialize", se)).To(BeIdenticalTo(se))
	})

	It("should add entity and action to raw errors", func() {
		err := Wrap("expense", "create", errFake("CHECK constraint failed"))
		Expect(err).To(BeAssignableToTypeOf(&OperationError{}))
		Expect(err.Error()).To(Equal("create expense: CHECK constraint failed"))
	})
})

type errFake string

func (e errFake) Error() string { return string(e) }
