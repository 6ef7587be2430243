package mocks

import (
	context "context"

	mock "github.com/stretchr/testify/mock"

	notify "booking-service/internal/notify"
)

// Notifier is a mock type for the Notifier type
type Notifier struct {
	mock.Mock
}

// SendCancellation provides a mock function with given fields: ctx, n
func (_m *Notifier) SendCancellation(ctx context.Context, n notify.Notice) error {
	ret := _m.Called(ctx, n)
	return errorResult(ret, ctx, n)
}

// SendConfirmation provides a mock function with given fields: ctx, n
func (_m *Notifier) SendConfirmation(ctx context.Context, n notify.Notice) error {
	ret := _m.Called(ctx, n)
	return errorResult(ret, ctx, n)
}

// SendReminder provides a mock function with given fields: ctx, n
func (_m *Notifier) SendReminder(ctx context.Context, n notify.Notice) error {
	ret := _m.Called(ctx, n)
	return errorResult(ret, ctx, n)
}

// SendReschedule provides a mock function with given fields: ctx, n
func (_m *Notifier) SendReschedule(ctx context.Context, n notify.Notice) error {
	ret := _m.Called(ctx, n)
	return errorResult(ret, ctx, n)
}

func errorResult(ret mock.Arguments, ctx context.Context, n notify.Notice) error {
	if rf, ok := ret.Get(0).(func(context.Context, notify.Notice) error); ok {
		return rf(ctx, n)
	}
	return ret.Error(0)
}

// NewNotifier creates a new instance of Notifier. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewNotifier(t interface {
	mock.TestingT
	Cleanup(func())
}) *Notifier {
	m := &Notifier{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
