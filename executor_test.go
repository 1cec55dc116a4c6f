package percolator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/percolator-ci/percolator/results"
	"github.com/percolator-ci/percolator/types"
)

// MockExecutorRunner is a mock implementation of the TestRunner interface for testing the executor
type MockExecutorRunner struct {
	mock.Mock
}

func (m *MockExecutorRunner) RunAll(ctx context.Context) (*results.Aggregate, error) {
	args := m.Called()
	result := args.Get(0)
	err := args.Error(1)
	if result == nil {
		return nil, err
	}
	return result.(*results.Aggregate), err
}

func (m *MockExecutorRunner) RunBatch(ctx context.Context, batch types.Batch) *results.Aggregate {
	args := m.Called(batch)
	return args.Get(0).(*results.Aggregate)
}

// TestDefaultTestExecutor_RunTests_Success tests the success path of the DefaultTestExecutor
func TestDefaultTestExecutor_RunTests_Success_Standalone(t *testing.T) {
	// Create mock runner
	mockRunner := new(MockExecutorRunner)

	// Create a sample successful result
	expectedResult := passingAggregate()

	// Set up expectation - RunAll should be called once and return our expected result
	mockRunner.On("RunAll").Return(expectedResult, nil)

	logger := discardLogger()

	// Create the executor with our mock runner
	executor := &DefaultTestExecutor{
		runner: mockRunner,
		logger: logger,
	}

	// Call RunTests method
	result, err := executor.RunTests(context.Background())

	// Verify expectations
	mockRunner.AssertExpectations(t)

	// Check assertions
	assert.NoError(t, err)
	assert.Equal(t, expectedResult, result)
}

// TestDefaultTestExecutor_RunTests_Error tests the error handling path of the DefaultTestExecutor
func TestDefaultTestExecutor_RunTests_Error_Standalone(t *testing.T) {
	// Create mock runner
	mockRunner := new(MockExecutorRunner)

	// Create an expected error
	expectedError := errors.New("test runner error")

	// Set up expectation - RunAll should be called once and return an error
	mockRunner.On("RunAll").Return(nil, expectedError)

	logger := discardLogger()

	// Create the executor with our mock runner
	executor := &DefaultTestExecutor{
		runner: mockRunner,
		logger: logger,
	}

	// Call RunTests method
	result, err := executor.RunTests(context.Background())

	// Verify expectations
	mockRunner.AssertExpectations(t)

	// Check assertions
	assert.Error(t, err)
	assert.Equal(t, expectedError, err)
	assert.Nil(t, result)
}
