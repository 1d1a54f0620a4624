package service

import (
	"context"
	"fmt"
	"sync"

	"jpjgate/internal/models"
	"jpjgate/pkg/macrokiosk"
)

// mockStore is an in-memory MessageStore keyed by provider message id.
type mockStore struct {
	mu       sync.Mutex
	messages map[string]*models.SmsMessage
	vehicles map[string]*models.Vehicle
	nextID   int64

	saveErr    error
	lookupErr  error
	vehicleErr error
	updateErr  error

	violationUpdates []int64
	cleanupCalls     []int
}

func newMockStore() *mockStore {
	return &mockStore{
		messages: make(map[string]*models.SmsMessage),
		vehicles: make(map[string]*models.Vehicle),
	}
}

func (m *mockStore) addVehicle(v *models.Vehicle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	v.ID = m.nextID
	m.vehicles[v.PlateNumber] = v
}

func (m *mockStore) SaveMessage(ctx context.Context, msg *models.SmsMessage) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return false, m.saveErr
	}
	if existing, ok := m.messages[msg.ProviderMessageID]; ok {
		msg.ID = existing.ID
		return false, nil
	}
	m.nextID++
	msg.ID = m.nextID
	stored := *msg
	m.messages[msg.ProviderMessageID] = &stored
	return true, nil
}

func (m *mockStore) GetMessageByProviderID(ctx context.Context, providerID string) (*models.SmsMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	msg, ok := m.messages[providerID]
	if !ok {
		return nil, nil
	}
	copied := *msg
	return &copied, nil
}

func (m *mockStore) UpdateMessageStatus(ctx context.Context, id int64, status models.MessageStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	for _, msg := range m.messages {
		if msg.ID == id {
			msg.Status = status
			return nil
		}
	}
	return fmt.Errorf("no message found with id %d", id)
}

func (m *mockStore) UpdateMessageDelivery(ctx context.Context, id int64, status models.MessageStatus, parsed *models.ParsedViolationData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	for _, msg := range m.messages {
		if msg.ID == id {
			msg.Status = status
			msg.ParsedData = parsed
			return nil
		}
	}
	return fmt.Errorf("no message found with id %d", id)
}

func (m *mockStore) GetVehicleByPlate(ctx context.Context, plateNumber string) (*models.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vehicleErr != nil {
		return nil, m.vehicleErr
	}
	v, ok := m.vehicles[plateNumber]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (m *mockStore) UpdateVehicleViolations(ctx context.Context, vehicleID int64, parsed *models.ParsedViolationData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	m.violationUpdates = append(m.violationUpdates, vehicleID)
	return nil
}

func (m *mockStore) GetMessagesByPlate(ctx context.Context, plateNumber string) ([]*models.SmsMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SmsMessage
	for _, msg := range m.messages {
		if msg.PlateNumber != nil && *msg.PlateNumber == plateNumber {
			copied := *msg
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockStore) CleanupOldMessages(retentionDays int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupCalls = append(m.cleanupCalls, retentionDays)
	return nil
}

// mockGateway records sends and returns a canned result.
type mockGateway struct {
	result  *macrokiosk.SendResult
	err     error
	plates  []string
	numbers []string
}

func (g *mockGateway) Send(ctx context.Context, recipients []string, body, sender string) (*macrokiosk.SendResult, error) {
	g.numbers = append(g.numbers, recipients...)
	return g.result, g.err
}

func (g *mockGateway) CheckTrafficViolations(ctx context.Context, plateNumber, jpjNumber string) (*macrokiosk.SendResult, error) {
	g.plates = append(g.plates, plateNumber)
	g.numbers = append(g.numbers, jpjNumber)
	return g.result, g.err
}
