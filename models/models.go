package models

// This file serves as the central export point for all database models
// Import this package to access all model types

// All models are automatically exported from their respective files:
// - User, RefreshToken from user.go
// - Topic from topic.go
// - DebateSession from session.go
// - DebateMessage, MessageReaction from message.go
// - PerformanceMetrics from metrics.go

// Database schema overview:
// 1. users - Managed by cookie/bearer authentication
// 2. topics - Debate topics users can practice against (seeded, read-only to clients)
// 3. debate_sessions - One practice debate per row, linking a user, a topic and a side
// 4. debate_messages - The ordered, turn-numbered message ledger of the exchange
// 5. message_reactions - At most one reaction per (message, user)
// 6. performance_metrics - Post-session multi-dimensional score per (session, user)
