package app

// Observer receives service events. Implemented by the metrics collector.
type Observer interface {
	ObserveRefresh(ritual, trigger string)
	SetStatus(ritual, state string, timeLeft float64)
	ObservePayment(kind, outcome string)
	AddPaymentsInFlight(delta float64)
	ObserveAuthorizationCheck(authorized bool)
}

type nopObserver struct{}

func (nopObserver) ObserveRefresh(string, string)     {}
func (nopObserver) SetStatus(string, string, float64) {}
func (nopObserver) ObservePayment(string, string)     {}
func (nopObserver) AddPaymentsInFlight(float64)       {}
func (nopObserver) ObserveAuthorizationCheck(bool)    {}
