// Package zoomlimit lifts the media viewer's zoom and resolution caps.
//
// The plugin installs three hooks into the host application:
//
//   - an After hook on the viewer's URL formatter that replaces the
//     viewport-sized proxy request with a maximum-resolution one;
//   - an InsteadOf hook on the zoom controller's scale limiter that only
//     refuses steps the safety guard predicts would exhaust canvas memory;
//   - an optional InsteadOf hook on the decoder's sample-size routine,
//     controlled by the removeMaxRes setting and applied live.
//
// Each hook is resolved independently. A hook whose target cannot be found
// is logged and skipped; the others stay active.
package zoomlimit
