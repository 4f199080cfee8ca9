package services

// ConversationLog lets the external tests read the conversation log back.
var ConversationLog = BoltDB.conversationLog
