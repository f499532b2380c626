package intake

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		var (
			name      string
			savedPath string
			err       error
		)

		BeforeEach(func() {
			name = "receipts/test.jpg"
		})

		JustBeforeEach(func() {
			savedPath, err = storage.Save(name, []byte("test file content"))
		})

		When("saving succeeds", func() {
			It("should return the relative path", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(savedPath).To(Equal("receipts/test.jpg"))
			})

			It("should create the parent directory and file", func() {
				Expect(filepath.Join(tmpDir, "receipts", "test.jpg")).To(BeAnExistingFile())
				Expect(storage.Exists(savedPath)).To(BeTrue())
			})
		})

		When("the name escapes the base directory", func() {
			BeforeEach(func() {
				name = "../outside.jpg"
			})

			It("should refuse it", func() {
				Expect(err).To(MatchError(ContainSubstring("invalid storage path")))
				Expect(filepath.Join(filepath.Dir(tmpDir), "outside.jpg")).NotTo(BeAnExistingFile())
			})
		})
	})

	Describe("Get", func() {
		It("should return the stored data", func() {
			_, err := storage.Save("a.jpg", []byte("content"))
			Expect(err).NotTo(HaveOccurred())

			data, err := storage.Get("a.jpg")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("content"))
		})

		It("returns the error for a missing file", func() {
			_, err := storage.Get("nonexistent.jpg")
			Expect(err).To(MatchError(ContainSubstring("reading file")))
		})
	})

	Describe("Exists", func() {
		It("should be false for missing files and directories", func() {
			_, err := storage.Save("receipts/a.jpg", []byte("x"))
			Expect(err).NotTo(HaveOccurred())

			Expect(storage.Exists("receipts/missing.jpg")).To(BeFalse())
			Expect(storage.Exists("receipts")).To(BeFalse())
			Expect(storage.Exists("/etc/passwd")).To(BeFalse())
		})
	})

	Describe("Delete", func() {
		It("should remove the file from disk", func() {
			_, err := storage.Save("test.jpg", []byte("test content"))
			Expect(err).NotTo(HaveOccurred())

			Expect(storage.Delete("test.jpg")).To(Succeed())
			Expect(filepath.Join(tmpDir, "test.jpg")).NotTo(BeAnExistingFile())
		})

		It("should ignore a missing file", func() {
			Expect(storage.Delete("nonexistent.jpg")).To(Succeed())
		})
	})

	Describe("NewLocalStorage", func() {
		It("should create a missing directory", func() {
			storagePath := filepath.Join(GinkgoT().TempDir(), "receipts")
			s, err := NewLocalStorage(storagePath)
			Expect(err).NotTo(HaveOccurred())
			Expect(storagePath).To(BeADirectory())

			_, err = s.Save("test.jpg", []byte("data"))
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
