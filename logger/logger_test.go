package logger_test

import (
	"bytes"
	"encoding/json"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/relloyd/openetl/logger"
)

var _ = Describe("Logger", func() {
	var (
		log       *logger.LoggerImpl
		logOutput *bytes.Buffer
		actual    map[string]interface{}
	)

	BeforeEach(func() {
		log = logger.NewWebLogger("test-service", "debug", true, nil)
		logOutput = bytes.NewBufferString("")
		log.SetOutput(logOutput)
		actual = nil
	})

	It("Should have `test-service` as service name", func() {
		log.Info("Testing")
		Expect(json.Unmarshal(logOutput.Bytes(), &actual)).To(Succeed())
		Expect(actual["service"]).To(Equal("test-service"))
	})

	It("Should have info as log level", func() {
		log.Info("Testing")
		Expect(json.Unmarshal(logOutput.Bytes(), &actual)).To(Succeed())
		Expect(actual["level"]).To(Equal("info"))
	})

	It("Should have warning as log level", func() {
		log.Warn("Testing")
		Expect(json.Unmarshal(logOutput.Bytes(), &actual)).To(Succeed())
		Expect(actual["level"]).To(Equal("warning"))
	})

	It("Should have error as log level with a stack trace", func() {
		log.Error("Testing")
		Expect(json.Unmarshal(logOutput.Bytes(), &actual)).To(Succeed())
		Expect(actual["level"]).To(Equal("error"))
		Expect(actual["stackTrace"]).ToNot(BeNil())
	})

	It("Should have `Testing` as msg", func() {
		log.Info("Testing")
		Expect(json.Unmarshal(logOutput.Bytes(), &actual)).To(Succeed())
		Expect(actual["msg"]).To(Equal("Testing"))
	})

	It("Should add fields to every entry", func() {
		log.WithField("taskId", "abc").Info("Testing")
		Expect(json.Unmarshal(logOutput.Bytes(), &actual)).To(Succeed())
		Expect(actual["taskId"]).To(Equal("abc"))
	})

	It("Should not log below the configured level", func() {
		quiet := logger.NewWebLogger("test-service", "warn", false, nil)
		quiet.SetOutput(logOutput)
		quiet.Info("hidden")
		Expect(logOutput.Len()).To(Equal(0))
	})

	It("Should panic with a recoverable value", func() {
		Expect(func() { log.Panic("boom") }).To(Panic())
	})
})
