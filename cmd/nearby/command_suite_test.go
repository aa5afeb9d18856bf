package main

import (
	"bytes"

	"github.com/sirupsen/logrus"
	"github.com/srg/nearby/internal/device"
	"github.com/srg/nearby/internal/testutils"
	suitelib "github.com/stretchr/testify/suite"
)

// CommandTestSuite runs cobra commands against a fake radio.
// All cmd/nearby test suites should embed it.
type CommandTestSuite struct {
	suitelib.Suite

	Helper *testutils.TestHelper
	Radio  *testutils.FakeRadio

	origFactory func(string, *logrus.Logger) (device.Radio, func(), error)
	driverName  string
}

func (s *CommandTestSuite) SetupTest() {
	s.Helper = testutils.NewTestHelper(s.T())
	s.Radio = testutils.NewFakeRadio()
	s.driverName = ""

	s.origFactory = radioFactory
	radioFactory = func(driver string, _ *logrus.Logger) (device.Radio, func(), error) {
		s.driverName = driver
		return s.Radio, func() {}, nil
	}
}

func (s *CommandTestSuite) TearDownTest() {
	radioFactory = s.origFactory
}

// ExecuteCommand runs the root command with args and returns stdout, stderr and the error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
