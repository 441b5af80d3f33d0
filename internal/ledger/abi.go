package ledger

// Call interface of the ProductVerification contract. The gateway
// consumes the deployed contract as a fixed address plus this ABI; the
// contract's own logic is an external collaborator.
const contractABI = `[
  {
    "type": "function",
    "name": "createBatch",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "_id", "type": "string"},
      {"name": "_name", "type": "string"},
      {"name": "_initialLocation", "type": "string"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "scanBatch",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "_id", "type": "string"},
      {"name": "_location", "type": "string"},
      {"name": "_status", "type": "string"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "batches",
    "stateMutability": "view",
    "inputs": [{"name": "", "type": "string"}],
    "outputs": [
      {"name": "id", "type": "string"},
      {"name": "name", "type": "string"},
      {"name": "currentLocation", "type": "string"},
      {"name": "isInitialized", "type": "bool"}
    ]
  },
  {
    "type": "function",
    "name": "getBatchHistory",
    "stateMutability": "view",
    "inputs": [{"name": "_id", "type": "string"}],
    "outputs": [
      {
        "name": "",
        "type": "tuple[]",
        "components": [
          {"name": "timestamp", "type": "uint256"},
          {"name": "location", "type": "string"},
          {"name": "status", "type": "string"},
          {"name": "actor", "type": "address"}
        ]
      }
    ]
  }
]`

// Ledger function names the handlers build intents against.
const (
	FnCreateBatch = "createBatch"
	FnScanBatch   = "scanBatch"
	fnBatches     = "batches"
	fnHistory     = "getBatchHistory"
)
