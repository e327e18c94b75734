// Command parallax matches image features across a structure-from-motion
// workspace database. Pair selection strategies (exhaustive, sequential,
// spatial, transitive, explicit lists) feed a pool of matcher workers whose
// results are committed in per-batch transactions.
package main
