package outbox

// Event is the domain event envelope written to the outbox table inside the
// same transaction as the state change it announces. The Kafka topic name
// equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types published by this service.
const (
	EventSlotsCreated         = "schedule.slots.created.v1"
	EventAppointmentBooked    = "booking.appointment.booked.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
	EventDepositPaid          = "billing.deposit.paid.v1"
)
