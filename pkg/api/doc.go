// Package api contains the core types shared by the stepwise orchestration
// packages: the session data model, step and flow definitions, the external
// service contracts, the error taxonomy and the Observer interface.
//
// Most users interact with the higher-level stepwise package, which
// re-exports selected types and helpers from this package. The api package is
// intended for custom integrations and for the implementation packages under
// internal/.
//
// # Sessions and Steps
//
// A FlowDefinition is an ordered table of StepDefinitions. Each step names its
// required fields, an optional pure validator, an optional skip predicate and
// an optional enrichment hook that runs before the next step is shown. The
// step controller owns one session per flow instance and exposes it as a
// SessionSnapshot.
//
// # External Services
//
// The orchestration core consumes narrow service interfaces:
//
//   - UniquenessRegistryService for debounced remote uniqueness checks
//   - ContentGenerationService for message text, prompts and images
//   - EntityPersistenceService for the background submission calls
//   - AnalysisJobService for eventual-consistency polling
//
// # Errors
//
// Local errors (ValidationError, UniquenessConflict) block forward
// navigation. Asynchronous failures (EnrichmentFailure, PersistenceFailure,
// poll exhaustion) degrade gracefully and are only surfaced as Notices.
//
// # Observability
//
// Observer receives transition, uniqueness, enrichment, submission, poll and
// notice callbacks. LoggingObserver writes them with log/slog, BasicMetrics
// counts them, and NewCompositeObserver fans out to several observers.
package api
