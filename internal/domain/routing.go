package domain

// DeliveryPlan is the router's output for one inbound event: which
// local workers should receive it, how it should be displayed on a
// dashboard, and whether DM participant resolution is still needed.
type DeliveryPlan struct {
	Targets           []string
	DisplayTarget     string
	NeedsDMResolution bool
}
