// Package telemetry records comlink consumer activity as OpenTelemetry
// metrics.
//
// [Recorder] implements comlink.Recorder. Pass it to a consumer with
// comlink.WithRecorder:
//
//	recorder, err := telemetry.NewRecorder(telemetry.WithQueueName("orders"))
//	if err != nil {
//	    return err
//	}
//
//	consumer, err := comlink.NewRaw(queue, handler, logger, comlink.WithRecorder(recorder))
//
// Instruments are created from the global meter provider unless
// [WithMeterProvider] is given.
package telemetry
