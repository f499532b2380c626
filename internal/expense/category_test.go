package expense

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/trip-expenses/internal/database"
)

var _ = Describe("CategoryRepository", func() {
	var (
		ctx   context.Context
		store *Store
		repo  *CategoryRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		store, _ = newTestStore()
		repo = store.Categories
	})

	Describe("GetAll", func() {
		It("should list the seeded categories in display order", func() {
			categories, err := repo.GetAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(categories).To(HaveLen(8))
			Expect(categories[0].Name).To(Equal("Meals"))
			Expect(categories[7].Name).To(Equal("Uncategorized"))
			Expect(categories[0].Type).To(Equal(CategoryStandard))
			Expect(categories[0].IsActive).To(BeTrue())
		})
	})

	Describe("Create", func() {
		It("should add a custom category", func() {
			c, err := repo.Create(ctx, CreateCategoryModel{Name: "Conference fees", Icon: ptr("ticket"), SortOrder: 8})
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Type).To(Equal(CategoryCustom))
			Expect(*c.Icon).To(Equal("ticket"))

			categories, err := repo.GetAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(categories).To(HaveLen(9))
		})

		It("should reject a duplicate name", func() {
			_, err := repo.Create(ctx, CreateCategoryModel{Name: "Meals"})
			Expect(err).To(BeAssignableToTypeOf(&database.OperationError{}))
		})

		It("should require a name", func() {
			_, err := repo.Create(ctx, CreateCategoryModel{})
			Expect(err).To(BeAssignableToTypeOf(&database.ValidationError{}))
		})
	})

	Describe("Delete", func() {
		var custom *ExpenseCategory

		BeforeEach(func() {
			var err error
			custom, err = repo.Create(ctx, CreateCategoryModel{Name: "Parking"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should remove an unused category", func() {
			Expect(repo.Delete(ctx, custom.ID)).To(Succeed())
			gone, err := repo.GetByID(ctx, custom.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(gone).To(BeNil())
		})

		It("should refuse a category still referenced by expenses", func() {
			m := expenseModel(nil, "Garage", "8.00", NewDate(2024, 2, 2))
			m.CategoryID = custom.ID
			_, err := store.Expenses.Create(ctx, m)
			Expect(err).NotTo(HaveOccurred())

			err = repo.Delete(ctx, custom.ID)
			var cerr *database.ConstraintError
			Expect(errors.As(err, &cerr)).To(BeTrue())
			Expect(cerr.Dependents).To(Equal(1))
		})

		It("should protect the Uncategorized category", func() {
			err := repo.Delete(ctx, database.UncategorizedCategoryID)
			Expect(err).To(BeAssignableToTypeOf(&database.ValidationError{}))
		})

		It("should return a NotFoundError for an unknown id", func() {
			Expect(repo.Delete(ctx, 9999)).To(BeAssignableToTypeOf(&database.NotFoundError{}))
		})
	})
})

var _ = Describe("RuleRepository", func() {
	var (
		ctx  context.Context
		repo *RuleRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		store, _ := newTestStore()
		repo = store.Rules
	})

	Describe("SuggestCategory", func() {
		BeforeEach(func() {
			for _, m := range []CreateRuleModel{
				{Pattern: "uber", CategoryID: 2, Priority: 1},
				{Pattern: "uber eats", CategoryID: 1, Priority: 5},
				{Pattern: "hotel", CategoryID: 3},
			} {
				_, err := repo.Create(ctx, m)
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("should pick the highest priority matching rule", func() {
			rule, err := repo.SuggestCategory(ctx, "UBER EATS 1234")
			Expect(err).NotTo(HaveOccurred())
			Expect(rule).NotTo(BeNil())
			Expect(rule.CategoryID).To(Equal(int64(1)))
		})

		It("should match case-insensitively", func() {
			rule, err := repo.SuggestCategory(ctx, "Uber Trip")
			Expect(err).NotTo(HaveOccurred())
			Expect(rule.CategoryID).To(Equal(int64(2)))
		})

		It("should match non-ASCII patterns case-insensitively", func() {
			_, err := repo.Create(ctx, CreateRuleModel{Pattern: "bäckerei", CategoryID: 1})
			Expect(err).NotTo(HaveOccurred())

			rule, err := repo.SuggestCategory(ctx, "BÄCKEREI SCHMIDT")
			Expect(err).NotTo(HaveOccurred())
			Expect(rule).NotTo(BeNil())
			Expect(rule.Pattern).To(Equal("bäckerei"))
		})

				It("should return nil when nothing matches", func() {
			rule, err := repo.SuggestCategory(ctx, "Corner Bakery")
			Expect(err).NotTo(HaveOccurred())
			Expect(rule).To(BeNil())
		})
	})

	Describe("List and Delete", func() {
		It("should list by priority and delete by id", func() {
			low, err := repo.Create(ctx, CreateRuleModel{Pattern: "  shell ", CategoryID: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(low.Pattern).To(Equal("shell"))
			_, err = repo.Create(ctx, CreateRuleModel{Pattern: "marriott", CategoryID: 3, Priority: 10})
			Expect(err).NotTo(HaveOccurred())

			rules, err := repo.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(rules).To(HaveLen(2))
			Expect(rules[0].Pattern).To(Equal("marriott"))

			Expect(repo.Delete(ctx, low.ID)).To(Succeed())
			Expect(repo.Delete(ctx, low.ID)).To(BeAssignableToTypeOf(&database.NotFoundError{}))
		})

		It("should reject a blank pattern", func() {
			_, err := repo.Create(ctx, CreateRuleModel{Pattern: "   ", CategoryID: 2})
			Expect(err).To(BeAssignableToTypeOf(&database.ValidationError{}))
		})
	})
})

var _ = Describe("SettingsRepository", func() {
	var (
		ctx  context.Context
		repo *SettingsRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		store, _ := newTestStore()
		repo = store.Settings
	})

	It("should return nil for an unset key", func() {
		v, err := repo.Get(ctx, "theme")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeNil())
	})

	It("should overwrite an existing value", func() {
		Expect(repo.Set(ctx, "theme", "dark")).To(Succeed())
		Expect(repo.Set(ctx, "theme", "light")).To(Succeed())
		v, err := repo.Get(ctx, "theme")
		Expect(err).NotTo(HaveOccurred())
		Expect(*v).To(Equal("light"))
	})

	It("should fall back to USD as default currency", func() {
		c, err := repo.DefaultCurrency(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(Equal("USD"))

		Expect(repo.Set(ctx, SettingDefaultCurrency, "CAD")).To(Succeed())
		c, err = repo.DefaultCurrency(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(Equal("CAD"))
	})

	It("should validate the default currency", func() {
		Expect(repo.Set(ctx, SettingDefaultCurrency, "dollars")).To(BeAssignableToTypeOf(&database.ValidationError{}))
	})
})
